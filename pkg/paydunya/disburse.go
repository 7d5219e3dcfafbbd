package paydunya

import (
	"context"
	"errors"
	"strings"
)

// DisburseParams pushes funds to a mobile money account.
type DisburseParams struct {
	AccountAlias string
	AmountCFA    int64
	WithdrawMode string
	DisburseID   string
	CallbackURL  string
}

type disburseInvoiceResponse struct {
	DisburseToken string `json:"disburse_token"`
}

type disburseSubmitResponse struct {
	ResponseText  string `json:"response_text"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

var ErrInvalidDisburse = errors.New("paydunya disburse requires account alias, withdraw mode and positive amount")

// Disburse runs the two-step disburse flow. DisburseID is forwarded so a retried
// submission of the same payout is deduplicated by PayDunya.
func (c *Client) Disburse(ctx context.Context, p DisburseParams) (string, error) {
	if c == nil {
		return "", errors.New("paydunya client not initialized")
	}
	if strings.TrimSpace(p.AccountAlias) == "" || strings.TrimSpace(p.WithdrawMode) == "" || p.AmountCFA <= 0 {
		return "", ErrInvalidDisburse
	}

	var inv disburseInvoiceResponse
	err := c.post(ctx, "/disburse/get-invoice", map[string]any{
		"account_alias": p.AccountAlias,
		"amount":        p.AmountCFA,
		"withdraw_mode": p.WithdrawMode,
		"callback_url":  p.CallbackURL,
	}, &inv)
	if err != nil {
		return "", err
	}
	if inv.DisburseToken == "" {
		return "", errors.New("paydunya disburse invoice missing token")
	}

	var sub disburseSubmitResponse
	err = c.post(ctx, "/disburse/submit-invoice", map[string]any{
		"disburse_invoice": inv.DisburseToken,
		"disburse_id":      p.DisburseID,
	}, &sub)
	if err != nil {
		return "", err
	}
	if sub.TransactionID != "" {
		return sub.TransactionID, nil
	}
	return inv.DisburseToken, nil
}
