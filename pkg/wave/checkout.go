package wave

import (
	"context"
	"errors"
	"strconv"
)

type CheckoutParams struct {
	AmountCFA       int64
	Currency        string
	ClientReference string
	SessionID       string
	SuccessURL      string
	ErrorURL        string
}

type CheckoutSession struct {
	ID        string `json:"id"`
	LaunchURL string `json:"wave_launch_url"`
	Status    string `json:"checkout_status"`
}

// CreateCheckoutSession opens a Wave checkout session. Amounts travel as decimal strings.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("wave client not initialized")
	}
	currency := p.Currency
	if currency == "" {
		currency = "XOF"
	}
	body := map[string]string{
		"amount":           strconv.FormatInt(p.AmountCFA, 10),
		"currency":         currency,
		"client_reference": p.ClientReference,
		"success_url":      p.SuccessURL,
		"error_url":        p.ErrorURL,
	}
	var sess CheckoutSession
	if err := c.post(ctx, "/v1/checkout/sessions", "checkout-"+p.SessionID, body, &sess); err != nil {
		return nil, err
	}
	if sess.ID == "" || sess.LaunchURL == "" {
		return nil, errors.New("wave checkout response missing id or launch url")
	}
	return &sess, nil
}
