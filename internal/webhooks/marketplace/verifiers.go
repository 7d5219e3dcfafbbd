package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/paydunya"
	pkgstripe "github.com/fieldbook/fieldbook-backend/pkg/stripe"
	"github.com/fieldbook/fieldbook-backend/pkg/wave"
)

// Verifier authenticates a raw delivery and normalizes it. Returning an error
// means the delivery is not trusted.
type Verifier interface {
	Provider() enums.PaymentProvider
	Verify(ctx context.Context, header http.Header, body []byte) (*Notification, error)
}

type Verifiers map[enums.PaymentProvider]Verifier

func NewVerifiers(vs ...Verifier) Verifiers {
	out := make(Verifiers, len(vs))
	for _, v := range vs {
		if v != nil {
			out[v.Provider()] = v
		}
	}
	return out
}

type stripeEvents interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type StripeVerifier struct {
	client stripeEvents
}

func NewStripeVerifier(client stripeEvents) *StripeVerifier {
	return &StripeVerifier{client: client}
}

func (v *StripeVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (v *StripeVerifier) Verify(_ context.Context, header http.Header, body []byte) (*Notification, error) {
	event, err := v.client.ConstructEvent(body, header.Get("Stripe-Signature"))
	if err != nil {
		return nil, err
	}
	n := &Notification{Provider: enums.PaymentProviderStripe, EventID: event.ID, Raw: json.RawMessage(body)}

	var outcome Outcome
	switch string(event.Type) {
	case pkgstripe.EventCheckoutCompleted, pkgstripe.EventCheckoutAsyncPaymentSucceeded:
		outcome = OutcomePaid
	case pkgstripe.EventCheckoutAsyncPaymentFailed:
		outcome = OutcomeFailed
	case pkgstripe.EventCheckoutExpired:
		outcome = OutcomeExpired
	default:
		return n, nil
	}

	sess, err := pkgstripe.CheckoutSessionFromEvent(event)
	if err != nil {
		return nil, err
	}
	// completed with an unpaid async method settles later via async_payment_*
	if outcome == OutcomePaid && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		outcome = OutcomeNone
	}
	n.Outcome = outcome
	n.ProviderToken = sess.ID
	n.ClientReference = sess.ClientReferenceID
	return n, nil
}

type waveEvents interface {
	ConstructEvent(body []byte, header string) (*wave.Event, error)
}

type WaveVerifier struct {
	client waveEvents
}

func NewWaveVerifier(client waveEvents) *WaveVerifier {
	return &WaveVerifier{client: client}
}

func (v *WaveVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderWaveDirect }

func (v *WaveVerifier) Verify(_ context.Context, header http.Header, body []byte) (*Notification, error) {
	ev, err := v.client.ConstructEvent(body, header.Get(wave.SignatureHeader))
	if err != nil {
		return nil, err
	}
	n := &Notification{
		Provider:        enums.PaymentProviderWaveDirect,
		EventID:         ev.ID,
		ProviderToken:   ev.Data.ID,
		ClientReference: ev.Data.ClientReference,
		Raw:             json.RawMessage(body),
	}
	switch ev.Type {
	case wave.EventCheckoutCompleted:
		if ev.Data.PaymentStatus == wave.PaymentStatusSucceeded {
			n.Outcome = OutcomePaid
		}
	case wave.EventCheckoutPaymentFailed:
		n.Outcome = OutcomeFailed
	}
	return n, nil
}

// PayDunyaVerifier checks the IPN hash. The invoice token is matched against
// the stored payment by the reconciler before any write.
type PayDunyaVerifier struct {
	masterKey string
}

func NewPayDunyaVerifier(masterKey string) *PayDunyaVerifier {
	return &PayDunyaVerifier{masterKey: masterKey}
}

func (v *PayDunyaVerifier) Provider() enums.PaymentProvider { return enums.PaymentProviderPayDunya }

func (v *PayDunyaVerifier) Verify(_ context.Context, _ http.Header, body []byte) (*Notification, error) {
	ipn, err := paydunya.ParseIPN(body)
	if err != nil {
		return nil, err
	}
	if err := paydunya.VerifyHash(ipn.Hash, v.masterKey); err != nil {
		return nil, err
	}
	if ipn.InvoiceToken == "" {
		return nil, errors.New("paydunya ipn missing invoice token")
	}
	n := &Notification{
		Provider:          enums.PaymentProviderPayDunya,
		ProviderToken:     ipn.InvoiceToken,
		ClientReference:   ipn.ClientReference,
		Raw:               ipn.Raw,
		RequireTokenMatch: true,
	}
	switch ipn.Status {
	case paydunya.StatusCompleted:
		n.Outcome = OutcomePaid
	case paydunya.StatusCancelled:
		n.Outcome = OutcomeCancelled
	case paydunya.StatusFailed:
		n.Outcome = OutcomeFailed
	case paydunya.StatusExpired:
		n.Outcome = OutcomeExpired
	}
	return n, nil
}
