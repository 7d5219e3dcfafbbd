package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

// Stripe rejects checkout sessions that expire sooner than 30 minutes.
const minSessionTTL = 30 * time.Minute

// CheckoutParams describes a single-line hosted checkout session.
type CheckoutParams struct {
	AmountCFA       int64
	Currency        string
	ClientReference string
	SessionID       string
	Description     string
	SuccessURL      string
	CancelURL       string
	TTL             time.Duration
}

// CheckoutSession is the subset of the Stripe session the marketplace persists.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession opens a hosted checkout session for a reservation payment.
// XOF is a zero-decimal currency so the CFA amount is sent unscaled.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if p.AmountCFA <= 0 {
		return nil, errors.New("stripe checkout amount must be positive")
	}
	currency, err := currencyFor(p.Currency)
	if err != nil {
		return nil, err
	}
	ttl := p.TTL
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.ClientReference),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ExpiresAt:         stripe.Int64(time.Now().Add(ttl).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(p.AmountCFA),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
				},
			},
		},
	}
	params.AddMetadata("client_reference", p.ClientReference)
	params.AddMetadata("session_id", p.SessionID)
	params.SetIdempotencyKey("checkout-" + p.SessionID)
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
