package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

// Payout is one logical disbursement of a payment's net amount to the field owner.
// Retries update the row in place and always reuse IdempotencyKey.
type Payout struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	MarketplacePaymentID uuid.UUID            `gorm:"column:marketplace_payment_id;type:uuid;not null"`
	FieldID              uuid.UUID            `gorm:"column:field_id;type:uuid;not null"`
	Channel              enums.PayoutChannel  `gorm:"column:channel;type:payout_channel;not null"`
	AmountCFA            int64                `gorm:"column:amount_cfa;not null"`
	Status               enums.PayoutStatus   `gorm:"column:status;type:payout_status;not null;default:'processing'"`
	ProviderID           *string              `gorm:"column:provider_id"`
	ProviderError        *types.ProviderError `gorm:"column:provider_error;type:jsonb"`
	IdempotencyKey       string               `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RetryCount           int                  `gorm:"column:retry_count;not null;default:0"`
	NextRetryAt          *time.Time           `gorm:"column:next_retry_at"`
	LockedUntil          *time.Time           `gorm:"column:locked_until"`
	CompletedAt          *time.Time           `gorm:"column:completed_at"`
	CancelledBy          *uuid.UUID           `gorm:"column:cancelled_by;type:uuid"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payout) TableName() string { return "payouts" }

func (p *Payout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
