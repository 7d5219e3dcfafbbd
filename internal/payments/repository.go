package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
)

const (
	PendingReservationIndex = "ux_marketplace_payments_reservation_pending"
	ClientReferenceIndex    = "ux_marketplace_payments_client_reference"
	SessionIDIndex          = "ux_marketplace_payments_session_id"
)

// Repository persists marketplace payments.
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

func (r *Repository) Create(ctx context.Context, payment *models.MarketplacePayment) error {
	if payment == nil {
		return errors.New("payment is required")
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MarketplacePayment, error) {
	return r.first(ctx, "id = ?", id)
}

// FindPendingByReservation returns the reservation's open checkout, or nil when there is none.
func (r *Repository) FindPendingByReservation(ctx context.Context, reservationID uuid.UUID) (*models.MarketplacePayment, error) {
	payment, err := r.first(ctx, "reservation_id = ? AND status = ?", reservationID, enums.MarketplacePaymentPending)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	return payment, err
}

func (r *Repository) FindByProviderToken(ctx context.Context, provider enums.PaymentProvider, token string) (*models.MarketplacePayment, error) {
	return r.first(ctx, "provider = ? AND provider_token = ?", provider, token)
}

func (r *Repository) FindByClientReference(ctx context.Context, ref string) (*models.MarketplacePayment, error) {
	return r.first(ctx, "client_reference = ?", ref)
}

// TransitionFromPending moves a pending payment to status. It reports false when
// the row had already left pending, in which case nothing was written.
func (r *Repository) TransitionFromPending(ctx context.Context, id uuid.UUID, status enums.MarketplacePaymentStatus, providerData json.RawMessage, now time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "target status must be terminal")
	}
	updates := map[string]any{
		"status":              status,
		"webhook_received_at": gorm.Expr("COALESCE(webhook_received_at, ?)", now),
		"updated_at":          now,
	}
	if len(providerData) > 0 {
		updates["provider_data"] = providerData
	}
	res := r.db.WithContext(ctx).
		Model(&models.MarketplacePayment{}).
		Where("id = ? AND status = ?", id, enums.MarketplacePaymentPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*models.MarketplacePayment, error) {
	var payment models.MarketplacePayment
	err := r.db.WithContext(ctx).Where(query, args...).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return &payment, nil
}
