package marketplace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/internal/payments"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/metrics"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox/payloads"
)

const actorWebhook = "webhook"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type payoutCreator interface {
	CreateTx(ctx context.Context, tx *gorm.DB, in payouts.CreateInput) (*models.Payout, error)
	Dispatch(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
}

type WebhookInput struct {
	Provider enums.PaymentProvider
	Header   http.Header
	Body     []byte
}

// Result describes what a delivery did. Applied is false for duplicates,
// ignored events and repeats of an already-recorded outcome.
type Result struct {
	Provider  enums.PaymentProvider          `json:"provider"`
	PaymentID *uuid.UUID                     `json:"payment_id,omitempty"`
	Status    enums.MarketplacePaymentStatus `json:"status,omitempty"`
	Applied   bool                           `json:"applied"`
	Duplicate bool                           `json:"duplicate,omitempty"`
	PayoutID  *uuid.UUID                     `json:"payout_id,omitempty"`
}

// Reconciler applies verified provider notifications to the payment ledger.
type Reconciler struct {
	tx        txRunner
	payments  *payments.Repository
	fields    bookings.FieldDirectory
	payouts   payoutCreator
	outbox    outbox.Emitter
	verifiers Verifiers
	guard     *IdempotencyGuard
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

type Deps struct {
	Tx        txRunner
	Payments  *payments.Repository
	Fields    bookings.FieldDirectory
	Payouts   payoutCreator
	Outbox    outbox.Emitter
	Verifiers Verifiers
	Guard     *IdempotencyGuard
	Metrics   *metrics.WebhookMetrics
	Logger    *logger.Logger
}

func NewReconciler(deps Deps) (*Reconciler, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if deps.Fields == nil {
		return nil, fmt.Errorf("field directory required")
	}
	if deps.Payouts == nil {
		return nil, fmt.Errorf("payout dispatcher required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if len(deps.Verifiers) == 0 {
		return nil, fmt.Errorf("at least one webhook verifier required")
	}
	return &Reconciler{
		tx:        deps.Tx,
		payments:  deps.Payments,
		fields:    deps.Fields,
		payouts:   deps.Payouts,
		outbox:    deps.Outbox,
		verifiers: deps.Verifiers,
		guard:     deps.Guard,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleWebhook verifies a delivery, moves the matching payment out of pending
// at most once and, on payment, creates and attempts the owner payout. Payout
// failures never surface to the caller.
func (r *Reconciler) HandleWebhook(ctx context.Context, in WebhookInput) (*Result, error) {
	provider := in.Provider.String()
	ctx = r.withField(ctx, "provider", provider)

	verifier, ok := r.verifiers[in.Provider]
	if !ok {
		r.metrics.Inc(provider, metrics.WebhookResultRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported webhook provider").
			WithDetails(map[string]any{"provider": provider})
	}

	n, err := verifier.Verify(ctx, in.Header, in.Body)
	if err != nil {
		r.metrics.Inc(provider, metrics.WebhookResultUnauthorized)
		r.warn(r.withField(ctx, "reason", err.Error()), "webhook.verification_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "webhook verification failed")
	}
	result := &Result{Provider: in.Provider}
	if n.Outcome == OutcomeNone {
		r.metrics.Inc(provider, metrics.WebhookResultNoop)
		r.debug(ctx, "webhook.ignored")
		return result, nil
	}

	deliveryID := n.EventID
	if deliveryID == "" {
		sum := sha256.Sum256(in.Body)
		deliveryID = hex.EncodeToString(sum[:])
	}
	if r.guard != nil {
		dup, err := r.guard.CheckAndMark(ctx, provider, deliveryID)
		switch {
		case err != nil:
			// TransitionFromPending stays idempotent without the cache
			r.warn(r.withField(ctx, "reason", err.Error()), "webhook.idempotency_unavailable")
		case dup:
			r.metrics.Inc(provider, metrics.WebhookResultDuplicate)
			result.Duplicate = true
			return result, nil
		}
	}

	result, err = r.apply(ctx, n, result)
	if err != nil {
		r.metrics.Inc(provider, resultLabel(err))
		if r.guard != nil {
			if relErr := r.guard.Release(ctx, provider, deliveryID); relErr != nil {
				r.warn(r.withField(ctx, "reason", relErr.Error()), "webhook.idempotency_release_failed")
			}
		}
		return nil, err
	}
	if result.Applied {
		r.metrics.Inc(provider, metrics.WebhookResultApplied)
	} else {
		r.metrics.Inc(provider, metrics.WebhookResultNoop)
	}
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, n *Notification, result *Result) (*Result, error) {
	target, _ := n.Outcome.Status()

	payment, err := r.locate(ctx, n)
	if err != nil {
		return nil, err
	}
	ctx = r.withPayment(ctx, payment.ID)
	result.PaymentID = &payment.ID

	if n.RequireTokenMatch && (payment.ProviderToken == nil || *payment.ProviderToken != n.ProviderToken) {
		r.warn(ctx, "webhook.token_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook token does not match payment")
	}

	var owner *bookings.OwnerPayoutConfig
	if target == enums.MarketplacePaymentPaid && payment.Status == enums.MarketplacePaymentPending {
		owner, err = r.fields.GetOwnerPayoutConfig(ctx, payment.FieldID)
		if err != nil {
			// never a 404: the provider must retry
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load field payout config")
		}
		if owner == nil || owner.Channel == nil {
			r.logError(ctx, "payout.channel_missing", fmt.Errorf("field %s has no payout channel", payment.FieldID))
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "field has no payout channel configured").
				WithDetails(map[string]any{"field_id": payment.FieldID.String()})
		}
	}

	var created *models.Payout
	now := r.now()
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.payments.WithTx(tx)
		moved, err := repo.TransitionFromPending(ctx, payment.ID, target, n.Raw, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !moved {
			current, err := repo.FindByID(ctx, payment.ID)
			if err != nil {
				return err
			}
			return terminalOutcome(current, target)
		}

		if target == enums.MarketplacePaymentPaid {
			created, err = r.createPayout(ctx, tx, payment, owner)
			if err != nil {
				return err
			}
		}

		event := payloads.MarketplacePaymentStatusChangedEvent{
			PaymentID:         payment.ID,
			ReservationID:     payment.ReservationID,
			ClientReference:   payment.ClientReference,
			Provider:          payment.Provider,
			PreviousStatus:    enums.MarketplacePaymentPending,
			Status:            target,
			AmountCFA:         payment.AmountCFA,
			WebhookReceivedAt: now,
		}
		if created != nil {
			event.PayoutID = &created.ID
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMarketplacePaymentStatusChanged,
			AggregateType: enums.AggregateMarketplacePayment,
			AggregateID:   payment.ID,
			Actor:         outbox.SystemActor(actorWebhook),
			Data:          event,
		})
	})

	result.Status = target
	switch {
	case err == nil:
		result.Applied = true
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		// same outcome already recorded
		r.debug(ctx, "webhook.already_applied")
		return result, nil
	default:
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			r.warn(r.withField(ctx, "outcome", string(n.Outcome)), "webhook.conflicting_outcome")
		}
		return nil, err
	}

	r.info(r.withField(ctx, "status", string(target)), "webhook.payment_transitioned")

	if created != nil {
		result.PayoutID = &created.ID
		if _, err := r.payouts.Dispatch(ctx, created.ID); err != nil {
			r.logError(r.logPayout(ctx, created.ID), "payout.dispatch_failed", err)
		}
	}
	return result, nil
}

// locate finds the payment by provider token first, then by client reference.
func (r *Reconciler) locate(ctx context.Context, n *Notification) (*models.MarketplacePayment, error) {
	if n.ProviderToken != "" {
		payment, err := r.payments.FindByProviderToken(ctx, n.Provider, n.ProviderToken)
		if err == nil {
			return payment, nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
	}
	if n.ClientReference != "" {
		payment, err := r.payments.FindByClientReference(ctx, n.ClientReference)
		if err != nil {
			return nil, err
		}
		if payment.Provider != n.Provider {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return payment, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
}

// createPayout inserts the owner payout. A payout already active for the
// payment is kept as is. The payment must not commit as paid without one.
func (r *Reconciler) createPayout(ctx context.Context, tx *gorm.DB, payment *models.MarketplacePayment, owner *bookings.OwnerPayoutConfig) (*models.Payout, error) {
	if owner == nil || owner.Channel == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "field has no payout channel configured")
	}
	payout, err := r.payouts.CreateTx(ctx, tx, payouts.CreateInput{
		PaymentID: payment.ID,
		FieldID:   payment.FieldID,
		Channel:   *owner.Channel,
		AmountCFA: payment.NetToOwnerCFA,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		r.debug(ctx, "payout.already_active")
		return nil, nil
	}
	return payout, err
}

// terminalOutcome compares a repeat notification with the recorded status.
func terminalOutcome(current *models.MarketplacePayment, target enums.MarketplacePaymentStatus) error {
	if current.Status == target {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already in target status")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "payment already has a different outcome").
		WithDetails(map[string]any{
			"payment_id": current.ID.String(),
			"status":     string(current.Status),
			"requested":  string(target),
		})
}

func resultLabel(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized):
		return metrics.WebhookResultUnauthorized
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return metrics.WebhookResultNotFound
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return metrics.WebhookResultConflict
	default:
		return metrics.WebhookResultError
	}
}

func (r *Reconciler) withField(ctx context.Context, key string, value any) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithField(ctx, key, value)
}

func (r *Reconciler) withPayment(ctx context.Context, id uuid.UUID) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithPaymentID(ctx, id.String())
}

func (r *Reconciler) logPayout(ctx context.Context, id uuid.UUID) context.Context {
	if r.logg == nil {
		return ctx
	}
	return r.logg.WithPayoutID(ctx, id.String())
}

func (r *Reconciler) debug(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Debug(ctx, msg)
	}
}

func (r *Reconciler) info(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Info(ctx, msg)
	}
}

func (r *Reconciler) warn(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Warn(ctx, msg)
	}
}

func (r *Reconciler) logError(ctx context.Context, msg string, err error) {
	if r.logg != nil {
		r.logg.Error(ctx, msg, err)
	}
}
