package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (c Caller) IsAdmin() bool {
	return c.Role == enums.UserRoleAdmin
}

type CheckoutInput struct {
	ReservationID uuid.UUID
	Provider      enums.PaymentProvider
	Caller        Caller
}

type CheckoutResult struct {
	PaymentID       uuid.UUID             `json:"payment_id"`
	SessionID       uuid.UUID             `json:"session_id"`
	Provider        enums.PaymentProvider `json:"provider"`
	CheckoutURL     string                `json:"checkout_url"`
	ClientReference string                `json:"client_reference"`
	Amount          int64                 `json:"amount"`
	PlatformFee     int64                 `json:"platform_fee"`
	NetToOwner      int64                 `json:"net_to_owner"`
}

type PaymentStatus struct {
	PaymentID       uuid.UUID                      `json:"payment_id"`
	Status          enums.MarketplacePaymentStatus `json:"status"`
	Amount          int64                          `json:"amount"`
	ClientReference string                         `json:"client_reference"`
	Payout          *PayoutSummary                 `json:"payout,omitempty"`
}

type PayoutSummary struct {
	PayoutID    uuid.UUID           `json:"payout_id"`
	Status      enums.PayoutStatus  `json:"status"`
	Channel     enums.PayoutChannel `json:"channel"`
	Amount      int64               `json:"amount"`
	RetryCount  int                 `json:"retry_count"`
	NextRetryAt *time.Time          `json:"next_retry_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func newPayoutSummary(p *models.Payout) *PayoutSummary {
	if p == nil {
		return nil
	}
	return &PayoutSummary{
		PayoutID:    p.ID,
		Status:      p.Status,
		Channel:     p.Channel,
		Amount:      p.AmountCFA,
		RetryCount:  p.RetryCount,
		NextRetryAt: p.NextRetryAt,
		CompletedAt: p.CompletedAt,
	}
}
