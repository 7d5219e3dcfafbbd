package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
)

// MarketplacePaymentCreatedEvent is emitted when a checkout session is opened.
type MarketplacePaymentCreatedEvent struct {
	PaymentID       uuid.UUID             `json:"payment_id"`
	ReservationID   uuid.UUID             `json:"reservation_id"`
	FieldID         uuid.UUID             `json:"field_id"`
	ClientReference string                `json:"client_reference"`
	Provider        enums.PaymentProvider `json:"provider"`
	AmountCFA       int64                 `json:"amount_cfa"`
	FeePlatformCFA  int64                 `json:"fee_platform_cfa"`
	NetToOwnerCFA   int64                 `json:"net_to_owner_cfa"`
}

// MarketplacePaymentStatusChangedEvent reports the single pending to terminal transition.
type MarketplacePaymentStatusChangedEvent struct {
	PaymentID         uuid.UUID                      `json:"payment_id"`
	ReservationID     uuid.UUID                      `json:"reservation_id"`
	ClientReference   string                         `json:"client_reference"`
	Provider          enums.PaymentProvider          `json:"provider"`
	PreviousStatus    enums.MarketplacePaymentStatus `json:"previous_status"`
	Status            enums.MarketplacePaymentStatus `json:"status"`
	AmountCFA         int64                          `json:"amount_cfa"`
	WebhookReceivedAt time.Time                      `json:"webhook_received_at"`
	PayoutID          *uuid.UUID                     `json:"payout_id,omitempty"`
}

// PayoutEvent covers payout_created, payout_succeeded, payout_failed and payout_cancelled.
type PayoutEvent struct {
	PayoutID       uuid.UUID           `json:"payout_id"`
	PaymentID      uuid.UUID           `json:"payment_id"`
	FieldID        uuid.UUID           `json:"field_id"`
	Channel        enums.PayoutChannel `json:"channel"`
	AmountCFA      int64               `json:"amount_cfa"`
	Status         enums.PayoutStatus  `json:"status"`
	RetryCount     int                 `json:"retry_count"`
	ProviderID     *string             `json:"provider_id,omitempty"`
	FailureMessage string              `json:"failure_message,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}
