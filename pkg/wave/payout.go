package wave

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

type PayoutParams struct {
	AmountCFA       int64
	Currency        string
	Mobile          string
	Name            string
	ClientReference string
	IdempotencyKey  string
}

type Payout struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

var ErrInvalidMobile = errors.New("wave payout requires an E.164 mobile number")

// SendPayout pays an owner's Wave wallet. The idempotency key is sent as
// Idempotency-Key so Wave returns the original payout on a replay.
func (c *Client) SendPayout(ctx context.Context, p PayoutParams) (*Payout, error) {
	if c == nil {
		return nil, errors.New("wave client not initialized")
	}
	if !strings.HasPrefix(p.Mobile, "+") || len(p.Mobile) < 8 {
		return nil, ErrInvalidMobile
	}
	currency := p.Currency
	if currency == "" {
		currency = "XOF"
	}
	body := map[string]string{
		"currency":         currency,
		"receive_amount":   strconv.FormatInt(p.AmountCFA, 10),
		"mobile":           p.Mobile,
		"client_reference": p.ClientReference,
	}
	if p.Name != "" {
		body["name"] = p.Name
	}
	var out Payout
	if err := c.post(ctx, "/v1/payout", p.IdempotencyKey, body, &out); err != nil {
		return nil, err
	}
	if out.Status == "failed" {
		return &out, &APIError{StatusCode: 422, Code: "payout-failed", Message: "wave reported the payout as failed"}
	}
	return &out, nil
}
