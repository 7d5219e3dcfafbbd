// Package payouts disburses owner proceeds and drives the payout retry state machine.
package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/metrics"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox/payloads"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CreateInput struct {
	PaymentID uuid.UUID
	FieldID   uuid.UUID
	Channel   enums.PayoutChannel
	AmountCFA int64
}

// SweepResult summarizes one RetryDue pass.
type SweepResult struct {
	Scanned     int `json:"scanned"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
	Skipped     int `json:"skipped"`
}

type Options struct {
	ChannelTimeout time.Duration
	ClaimLease     time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	MaxAttempts    int
	SweepBatch     int
	Currency       string
}

// OptionsFromConfig maps the payout settings onto dispatcher options.
func OptionsFromConfig(cfg config.PayoutsConfig, currency string) Options {
	return Options{
		ChannelTimeout: cfg.ChannelTimeout,
		ClaimLease:     cfg.ClaimLease,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
		MaxAttempts:    cfg.MaxAttempts,
		SweepBatch:     cfg.SweepBatch,
		Currency:       currency,
	}
}

func (o *Options) applyDefaults() {
	if o.ChannelTimeout <= 0 {
		o.ChannelTimeout = 20 * time.Second
	}
	if o.ClaimLease <= 0 {
		o.ClaimLease = 2 * time.Minute
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.SweepBatch <= 0 {
		o.SweepBatch = 100
	}
	if o.Currency == "" {
		o.Currency = "XOF"
	}
}

type Dispatcher struct {
	tx       txRunner
	repo     *Repository
	fields   bookings.FieldDirectory
	channels Channels
	outbox   outbox.Emitter
	metrics  *metrics.PayoutMetrics
	logg     *logger.Logger
	opts     Options
	now      func() time.Time
}

type Deps struct {
	Tx       txRunner
	Repo     *Repository
	Fields   bookings.FieldDirectory
	Channels Channels
	Outbox   outbox.Emitter
	Metrics  *metrics.PayoutMetrics
	Logger   *logger.Logger
	Options  Options
}

func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if deps.Fields == nil {
		return nil, fmt.Errorf("field directory required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if deps.Channels == nil {
		deps.Channels = Channels{}
	}
	deps.Options.applyDefaults()
	return &Dispatcher{
		tx:       deps.Tx,
		repo:     deps.Repo,
		fields:   deps.Fields,
		channels: deps.Channels,
		outbox:   deps.Outbox,
		metrics:  deps.Metrics,
		logg:     deps.Logger,
		opts:     deps.Options,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create inserts a payout and makes the first attempt.
func (d *Dispatcher) Create(ctx context.Context, in CreateInput) (*models.Payout, error) {
	var created *models.Payout
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := d.CreateTx(ctx, tx, in)
		created = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, created.ID)
}

// CreateTx inserts a processing payout inside the caller's transaction. It
// returns a Conflict error when the payment already has an active payout.
func (d *Dispatcher) CreateTx(ctx context.Context, tx *gorm.DB, in CreateInput) (*models.Payout, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	if in.PaymentID == uuid.Nil || in.FieldID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment and field are required")
	}
	if in.AmountCFA <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	}
	if !in.Channel.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payout channel")
	}

	repo := d.repo.WithTx(tx)
	existing, err := repo.FindActiveByPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, activeConflict(existing)
	}

	payout := &models.Payout{
		MarketplacePaymentID: in.PaymentID,
		FieldID:              in.FieldID,
		Channel:              in.Channel,
		AmountCFA:            in.AmountCFA,
		Status:               enums.PayoutStatusProcessing,
		IdempotencyKey:       "po-" + uuid.NewString(),
	}
	if err := repo.Create(ctx, payout); err != nil {
		if db.IsUniqueViolation(err, ActivePaymentIndex) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already has an active payout")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payout")
	}
	if err := d.emit(ctx, tx, enums.EventPayoutCreated, payout, ""); err != nil {
		return nil, err
	}
	return payout, nil
}

// Dispatch makes one disbursement attempt if the payout can be claimed and
// records the outcome. Channel failures are recorded on the row, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	ctx = d.withPayout(ctx, payoutID)

	claimed, err := d.repo.Claim(ctx, payoutID, d.now(), d.opts.ClaimLease)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim payout")
	}
	payout, err := d.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		d.debug(ctx, "payout.dispatch_skipped")
		return payout, nil
	}

	started := time.Now()
	result, cerr := d.attempt(ctx, payout)
	outcome, err := d.record(ctx, payout, result, cerr)
	if d.metrics != nil {
		d.metrics.ObserveAttempt(payout.Channel.String(), outcome, time.Since(started))
	}
	if err != nil {
		return nil, err
	}
	return d.repo.FindByID(ctx, payoutID)
}

func (d *Dispatcher) attempt(ctx context.Context, payout *models.Payout) (*DisburseResult, *ChannelError) {
	channel, ok := d.channels[payout.Channel]
	if !ok || channel == nil {
		return nil, channelMissing(fmt.Sprintf("no adapter configured for channel %s", payout.Channel))
	}
	owner, err := d.fields.GetOwnerPayoutConfig(ctx, payout.FieldID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, invalidDestination("field not found", err)
		}
		return nil, Classify(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.ChannelTimeout)
	defer cancel()
	result, err := channel.Disburse(callCtx, DisburseRequest{
		PayoutID:       payout.ID,
		IdempotencyKey: payout.IdempotencyKey,
		AmountCFA:      payout.AmountCFA,
		Currency:       d.opts.Currency,
		Destination:    owner.Destination,
		Reference:      payout.IdempotencyKey,
	})
	if err != nil {
		return nil, Classify(err)
	}
	if result == nil {
		result = &DisburseResult{}
	}
	return result, nil
}

func (d *Dispatcher) record(ctx context.Context, payout *models.Payout, result *DisburseResult, cerr *ChannelError) (string, error) {
	now := d.now()
	outcome := metrics.PayoutOutcomeSucceeded
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)

		if cerr == nil {
			ok, err := repo.MarkSucceeded(ctx, payout.ID, result.ProviderID, now)
			if err != nil || !ok {
				return guardErr(err, ok)
			}
			payout.Status = enums.PayoutStatusSucceeded
			payout.ProviderID = &result.ProviderID
			payout.CompletedAt = &now
			return d.emit(ctx, tx, enums.EventPayoutSucceeded, payout, "")
		}

		perr := types.ProviderError{
			Kind:       cerr.Kind,
			Retryable:  cerr.Retryable,
			StatusCode: cerr.StatusCode,
			Code:       cerr.Code,
			Message:    cerr.Message,
			Attempt:    payout.RetryCount + 1,
			At:         now,
		}

		if !cerr.Retryable {
			outcome = metrics.PayoutOutcomeNonRetryable
			ok, err := repo.MarkFailed(ctx, payout.ID, payout.RetryCount, payout.RetryCount, perr, now)
			if err != nil || !ok {
				return guardErr(err, ok)
			}
			payout.Status = enums.PayoutStatusFailed
			payout.CompletedAt = &now
			return d.emit(ctx, tx, enums.EventPayoutFailed, payout, cerr.Message)
		}

		attempts := payout.RetryCount + 1
		if attempts >= d.opts.MaxAttempts {
			outcome = metrics.PayoutOutcomeExhausted
			ok, err := repo.MarkFailed(ctx, payout.ID, payout.RetryCount, attempts, perr, now)
			if err != nil || !ok {
				return guardErr(err, ok)
			}
			payout.Status = enums.PayoutStatusFailed
			payout.RetryCount = attempts
			payout.CompletedAt = &now
			return d.emit(ctx, tx, enums.EventPayoutFailed, payout, cerr.Message)
		}

		outcome = metrics.PayoutOutcomeRetryable
		next := now.Add(Backoff(attempts, d.opts.BackoffBase, d.opts.BackoffCap))
		ok, err := repo.MarkRetry(ctx, payout.ID, payout.RetryCount, perr, next, now)
		return guardErr(err, ok)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			d.warn(ctx, "payout.outcome_discarded")
			return outcome, nil
		}
		return outcome, err
	}

	if d.logg != nil {
		fields := map[string]any{"outcome": outcome, "channel": payout.Channel.String(), "attempt": payout.RetryCount + 1}
		if cerr != nil {
			fields["error_kind"] = cerr.Kind
			fields["status_code"] = cerr.StatusCode
			logCtx := d.logg.WithFields(ctx, fields)
			if cerr.Retryable {
				d.logg.Warn(logCtx, "payout.dispatch_failed")
			} else {
				d.logg.Error(logCtx, "payout.dispatch_failed", cerr)
			}
		} else {
			d.logg.Info(d.logg.WithFields(ctx, fields), "payout.succeeded")
		}
	}
	return outcome, nil
}

// RetryDue dispatches every payout whose retry time has passed.
func (d *Dispatcher) RetryDue(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	rows, err := d.repo.ListDue(ctx, d.now(), d.opts.ClaimLease, d.opts.SweepBatch)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due payouts")
	}
	result.Scanned = len(rows)

	var errs error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		before := row.RetryCount
		updated, err := d.Dispatch(ctx, row.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", row.ID, err))
			continue
		}
		switch {
		case updated.Status == enums.PayoutStatusSucceeded:
			result.Succeeded++
		case updated.Status == enums.PayoutStatusFailed:
			result.Failed++
		case updated.RetryCount > before:
			result.Rescheduled++
		default:
			result.Skipped++
		}
	}
	return result, errs
}

// Cancel stops a payout that is not currently being dispatched.
func (d *Dispatcher) Cancel(ctx context.Context, payoutID, actorID uuid.UUID) (*models.Payout, error) {
	ctx = d.withPayout(ctx, payoutID)
	now := d.now()
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)
		ok, err := repo.Cancel(ctx, payoutID, actorID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payout")
		}
		current, err := repo.FindByID(ctx, payoutID)
		if err != nil {
			return err
		}
		if !ok {
			if current.Status.IsTerminal() {
				return pkgerrors.New(pkgerrors.CodeConflict, "payout already "+current.Status.String()).
					WithDetails(map[string]any{"status": current.Status.String()})
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "payout is being dispatched")
		}
		return d.emit(ctx, tx, enums.EventPayoutCancelled, current, "")
	})
	if err != nil {
		return nil, err
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithUserID(ctx, actorID.String()), "payout.cancelled")
	}
	return d.repo.FindByID(ctx, payoutID)
}

func (d *Dispatcher) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, p *models.Payout, failure string) error {
	actor := outbox.SystemActor("payout-dispatcher")
	if p.CancelledBy != nil {
		actor = &outbox.ActorRef{UserID: p.CancelledBy, Role: enums.UserRoleAdmin.String()}
	}
	return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   p.ID,
		Actor:         actor,
		Data: payloads.PayoutEvent{
			PayoutID:       p.ID,
			PaymentID:      p.MarketplacePaymentID,
			FieldID:        p.FieldID,
			Channel:        p.Channel,
			AmountCFA:      p.AmountCFA,
			Status:         p.Status,
			RetryCount:     p.RetryCount,
			ProviderID:     p.ProviderID,
			FailureMessage: failure,
			CompletedAt:    p.CompletedAt,
		},
	})
}

func (d *Dispatcher) withPayout(ctx context.Context, id uuid.UUID) context.Context {
	if d.logg == nil {
		return ctx
	}
	return d.logg.WithPayoutID(ctx, id.String())
}

func (d *Dispatcher) debug(ctx context.Context, msg string) {
	if d.logg != nil {
		d.logg.Debug(ctx, msg)
	}
}

func (d *Dispatcher) warn(ctx context.Context, msg string) {
	if d.logg != nil {
		d.logg.Warn(ctx, msg)
	}
}

func guardErr(err error, ok bool) error {
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout outcome")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payout left processing during dispatch")
	}
	return nil
}

func activeConflict(existing *models.Payout) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payment already has an active payout").
		WithDetails(map[string]any{"payout_id": existing.ID.String()})
}
