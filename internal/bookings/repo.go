// Package bookings reads the reservation and field tables owned by the booking side of the platform.
package bookings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

// ReservationStatusPaid marks a reservation that is already settled.
const ReservationStatusPaid = "paid"

type Reservation struct {
	ID        uuid.UUID
	FieldID   uuid.UUID
	UserID    uuid.UUID
	AmountCFA int64
	Status    string
}

func (r Reservation) IsPaid() bool {
	return r.Status == ReservationStatusPaid
}

// OwnerPayoutConfig is how a field owner gets paid and what the platform keeps.
type OwnerPayoutConfig struct {
	FieldID           uuid.UUID
	OwnerID           uuid.UUID
	FieldName         string
	Channel           *enums.PayoutChannel
	Destination       types.PayoutDestination
	CommissionRateBPS int
}

type ReservationReader interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
}

type FieldDirectory interface {
	GetOwnerPayoutConfig(ctx context.Context, fieldID uuid.UUID) (*OwnerPayoutConfig, error)
}

// Repository implements ReservationReader and FieldDirectory over GORM.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	var row models.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	return &Reservation{
		ID:        row.ID,
		FieldID:   row.FieldID,
		UserID:    row.UserID,
		AmountCFA: row.AmountCFA,
		Status:    row.Status,
	}, nil
}

func (r *Repository) GetOwnerPayoutConfig(ctx context.Context, fieldID uuid.UUID) (*OwnerPayoutConfig, error) {
	var row models.Field
	if err := r.db.WithContext(ctx).Where("id = ?", fieldID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "field not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load field")
	}
	return &OwnerPayoutConfig{
		FieldID:           row.ID,
		OwnerID:           row.OwnerID,
		FieldName:         row.Name,
		Channel:           row.PayoutChannel,
		Destination:       row.PayoutDestination,
		CommissionRateBPS: row.CommissionRateBPS,
	}, nil
}
