package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

const ActivePaymentIndex = "ux_payouts_payment_active"

// Repository persists payouts. Every mutation is guarded by status = 'processing'.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, payout *models.Payout) error {
	if payout == nil {
		return errors.New("payout is required")
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &payout, nil
}

// FindLatestByPayment returns the most recent payout for a payment, cancelled ones included.
func (r *Repository) FindLatestByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("marketplace_payment_id = ?", paymentID).
		Order("created_at DESC").
		First(&payout).Error
	if err != nil {
		return nil, notFoundOr(err)
	}
	return &payout, nil
}

// FindActiveByPayment returns the non-cancelled payout for a payment, or nil.
func (r *Repository) FindActiveByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).
		Where("marketplace_payment_id = ? AND status <> ?", paymentID, enums.PayoutStatusCancelled).
		First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return &payout, nil
}

// Claim takes the dispatch lease. It reports false when the payout is terminal
// or another dispatcher holds an unexpired lease.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	until := now.Add(lease)
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusProcessing).
		Where("locked_until IS NULL OR locked_until <= ?", now).
		Updates(map[string]any{
			"locked_until":  until,
			"next_retry_at": until,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID, providerID string, now time.Time) (bool, error) {
	return r.guardedUpdate(ctx, id, -1, map[string]any{
		"status":        enums.PayoutStatusSucceeded,
		"provider_id":   providerID,
		"completed_at":  now,
		"locked_until":  nil,
		"next_retry_at": nil,
		"updated_at":    now,
	})
}

// MarkRetry records a retryable failure. attemptsBefore guards against a
// concurrent writer having already counted this attempt.
func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, attemptsBefore int, perr types.ProviderError, nextRetryAt, now time.Time) (bool, error) {
	return r.guardedUpdate(ctx, id, attemptsBefore, map[string]any{
		"retry_count":    attemptsBefore + 1,
		"provider_error": perr,
		"next_retry_at":  nextRetryAt,
		"locked_until":   nil,
		"updated_at":     now,
	})
}

// MarkFailed moves the payout to failed. retryCount is the value to store.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, attemptsBefore, retryCount int, perr types.ProviderError, now time.Time) (bool, error) {
	return r.guardedUpdate(ctx, id, attemptsBefore, map[string]any{
		"status":         enums.PayoutStatusFailed,
		"retry_count":    retryCount,
		"provider_error": perr,
		"completed_at":   now,
		"next_retry_at":  nil,
		"locked_until":   nil,
		"updated_at":     now,
	})
}

// Cancel moves an unclaimed processing payout to cancelled.
func (r *Repository) Cancel(ctx context.Context, id, actorID uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusProcessing).
		Where("locked_until IS NULL OR locked_until <= ?", now).
		Updates(map[string]any{
			"status":        enums.PayoutStatusCancelled,
			"cancelled_by":  actorID,
			"completed_at":  now,
			"next_retry_at": nil,
			"locked_until":  nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDue returns processing payouts whose retry time has passed, oldest first.
// Rows that were created but never claimed are picked up once orphanAfter has elapsed.
func (r *Repository) ListDue(ctx context.Context, now time.Time, orphanAfter time.Duration, limit int) ([]models.Payout, error) {
	var rows []models.Payout
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusProcessing).
		Where("(next_retry_at IS NOT NULL AND next_retry_at <= ?) OR (next_retry_at IS NULL AND locked_until IS NULL AND created_at <= ?)",
			now, now.Add(-orphanAfter)).
		Order("next_retry_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) guardedUpdate(ctx context.Context, id uuid.UUID, attemptsBefore int, updates map[string]any) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusProcessing)
	if attemptsBefore >= 0 {
		q = q.Where("retry_count = ?", attemptsBefore)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
}
