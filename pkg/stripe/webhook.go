package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Checkout session events the marketplace reconciles.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutExpired               = "checkout.session.expired"
)

var ErrSignatureMissing = errors.New("stripe signature missing")

// ConstructEvent verifies the Stripe-Signature header against the signing secret.
func (c *Client) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if sigHeader == "" {
		return stripe.Event{}, ErrSignatureMissing
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.SigningSecret(), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// CheckoutSessionFromEvent decodes the checkout session carried by a checkout.session.* event.
func CheckoutSessionFromEvent(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("stripe event %s has no data", event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &sess, nil
}
