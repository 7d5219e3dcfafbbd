package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/transfer"
)

// TransferParams moves funds from the platform balance to a connected account.
type TransferParams struct {
	AmountCFA      int64
	Currency       string
	Destination    string
	IdempotencyKey string
	Reference      string
}

// Transfer creates a Connect transfer and returns its id.
func (c *Client) Transfer(ctx context.Context, p TransferParams) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	currency, err := currencyFor(p.Currency)
	if err != nil {
		return "", err
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(p.AmountCFA),
		Currency:      stripe.String(currency),
		Destination:   stripe.String(p.Destination),
		TransferGroup: stripe.String(p.Reference),
	}
	params.AddMetadata("payout_reference", p.Reference)
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.Context = ctx

	t, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// HTTPStatus extracts the HTTP status Stripe answered with, if err is an API error.
func HTTPStatus(err error) (int, bool) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 {
		return stripeErr.HTTPStatusCode, true
	}
	return 0, false
}

// ErrorCode returns Stripe's machine readable error code, if any.
func ErrorCode(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return string(stripeErr.Code)
	}
	return ""
}
