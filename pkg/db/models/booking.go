package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

// Reservation is owned by the booking side of the platform; this service only reads it.
type Reservation struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	FieldID   uuid.UUID `gorm:"column:field_id;type:uuid;not null"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	AmountCFA int64     `gorm:"column:amount_cfa;not null"`
	Status    string    `gorm:"column:status;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Reservation) TableName() string { return "reservations" }

// Field carries the owner's commission and payout preferences.
type Field struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID               `gorm:"column:owner_id;type:uuid;not null"`
	Name              string                  `gorm:"column:name;not null"`
	CommissionRateBPS int                     `gorm:"column:commission_rate_bps;not null"`
	PayoutChannel     *enums.PayoutChannel    `gorm:"column:payout_channel;type:payout_channel"`
	PayoutDestination types.PayoutDestination `gorm:"column:payout_destination;type:jsonb"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (Field) TableName() string { return "fields" }
