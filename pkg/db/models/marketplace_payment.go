package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
)

// MarketplacePayment is one checkout attempt for a reservation.
type MarketplacePayment struct {
	ID                uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID     uuid.UUID                      `gorm:"column:reservation_id;type:uuid;not null"`
	FieldID           uuid.UUID                      `gorm:"column:field_id;type:uuid;not null"`
	PayerUserID       uuid.UUID                      `gorm:"column:payer_user_id;type:uuid;not null"`
	ClientReference   string                         `gorm:"column:client_reference;not null;uniqueIndex"`
	SessionID         uuid.UUID                      `gorm:"column:session_id;type:uuid;not null;uniqueIndex"`
	Provider          enums.PaymentProvider          `gorm:"column:provider;type:payment_provider;not null"`
	CheckoutURL       *string                        `gorm:"column:checkout_url"`
	ProviderToken     *string                        `gorm:"column:provider_token"`
	Status            enums.MarketplacePaymentStatus `gorm:"column:status;type:marketplace_payment_status;not null;default:'pending'"`
	AmountCFA         int64                          `gorm:"column:amount_cfa;not null"`
	FeePlatformCFA    int64                          `gorm:"column:fee_platform_cfa;not null"`
	NetToOwnerCFA     int64                          `gorm:"column:net_to_owner_cfa;not null"`
	CommissionRateBPS int                            `gorm:"column:commission_rate_bps;not null"`
	ProviderData      json.RawMessage                `gorm:"column:provider_data;type:jsonb"`
	WebhookReceivedAt *time.Time                     `gorm:"column:webhook_received_at"`
	CreatedAt         time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (MarketplacePayment) TableName() string { return "marketplace_payments" }

func (m *MarketplacePayment) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
