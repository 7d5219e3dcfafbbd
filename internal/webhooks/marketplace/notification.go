package marketplace

import (
	"encoding/json"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
)

// Outcome is a provider result normalized at the boundary.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomePaid      Outcome = "paid"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeCancelled Outcome = "cancelled"
)

// Status returns the payment status the outcome moves a pending payment to.
func (o Outcome) Status() (enums.MarketplacePaymentStatus, bool) {
	switch o {
	case OutcomePaid:
		return enums.MarketplacePaymentPaid, true
	case OutcomeFailed:
		return enums.MarketplacePaymentFailed, true
	case OutcomeExpired:
		return enums.MarketplacePaymentExpired, true
	case OutcomeCancelled:
		return enums.MarketplacePaymentCancelled, true
	default:
		return "", false
	}
}

// Notification is a verified provider webhook in provider-neutral form.
type Notification struct {
	Provider        enums.PaymentProvider
	EventID         string
	ProviderToken   string
	ClientReference string
	Outcome         Outcome
	Raw             json.RawMessage
	// RequireTokenMatch is set when authenticity depends on the token matching the stored payment.
	RequireTokenMatch bool
}
