package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox/payloads"
)

const (
	defaultProviderTimeout = 15 * time.Second
	maxReferenceAttempts   = 8
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutService opens provider checkout sessions for reservations.
type CheckoutService struct {
	tx           txRunner
	repo         *Repository
	reservations bookings.ReservationReader
	fields       bookings.FieldDirectory
	providers    Providers
	outbox       outbox.Emitter
	cfg          config.MarketplaceConfig
	logg         *logger.Logger
	now          func() time.Time
	newSession   func() uuid.UUID
}

type CheckoutDeps struct {
	Tx           txRunner
	Repo         *Repository
	Reservations bookings.ReservationReader
	Fields       bookings.FieldDirectory
	Providers    Providers
	Outbox       outbox.Emitter
	Config       config.MarketplaceConfig
	Logger       *logger.Logger
}

func NewCheckoutService(deps CheckoutDeps) (*CheckoutService, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if deps.Reservations == nil {
		return nil, fmt.Errorf("reservation reader required")
	}
	if deps.Fields == nil {
		return nil, fmt.Errorf("field directory required")
	}
	if len(deps.Providers) == 0 {
		return nil, fmt.Errorf("at least one payment provider required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if deps.Config.ProviderTimeout <= 0 {
		deps.Config.ProviderTimeout = defaultProviderTimeout
	}
	return &CheckoutService{
		tx:           deps.Tx,
		repo:         deps.Repo,
		reservations: deps.Reservations,
		fields:       deps.Fields,
		providers:    deps.Providers,
		outbox:       deps.Outbox,
		cfg:          deps.Config,
		logg:         deps.Logger,
		now:          func() time.Time { return time.Now().UTC() },
		newSession:   uuid.New,
	}, nil
}

// CreateCheckout opens a checkout session for the reservation. Nothing is
// persisted when the provider call fails.
func (s *CheckoutService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.ReservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation_id required")
	}

	reservation, err := s.reservations.GetReservation(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if !in.Caller.IsAdmin() && in.Caller.UserID != reservation.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
	}
	if reservation.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "reservation already paid")
	}

	provider, err := s.resolveProvider(in.Provider)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindPendingByReservation(ctx, reservation.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, pendingConflict(existing)
	}

	field, err := s.fields.GetOwnerPayoutConfig(ctx, reservation.FieldID)
	if err != nil {
		return nil, err
	}
	fee, net, err := Split(reservation.AmountCFA, field.CommissionRateBPS)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment split")
	}

	sessionID, ref, err := s.allocateReference(ctx, reservation.ID)
	if err != nil {
		return nil, err
	}
	ctx = s.withFields(ctx, map[string]any{
		"reservation_id":   reservation.ID.String(),
		"client_reference": ref,
		"provider":         provider.Name().String(),
	})

	session, err := s.callProvider(ctx, provider, CheckoutRequest{
		AmountCFA:       reservation.AmountCFA,
		Currency:        s.cfg.Currency,
		ClientReference: ref,
		SessionID:       sessionID,
		CallbackURL:     s.callbackURL(provider.Name()),
		ReturnURL:       s.cfg.ReturnURL,
		CancelURL:       s.cfg.CancelURL,
		Description:     fmt.Sprintf("Reservation %s - %s", ref, field.FieldName),
	})
	if err != nil {
		return nil, err
	}

	payment := &models.MarketplacePayment{
		ReservationID:     reservation.ID,
		FieldID:           reservation.FieldID,
		PayerUserID:       in.Caller.UserID,
		ClientReference:   ref,
		SessionID:         sessionID,
		Provider:          provider.Name(),
		CheckoutURL:       optionalString(session.CheckoutURL),
		ProviderToken:     optionalString(session.Token),
		Status:            enums.MarketplacePaymentPending,
		AmountCFA:         reservation.AmountCFA,
		FeePlatformCFA:    fee,
		NetToOwnerCFA:     net,
		CommissionRateBPS: field.CommissionRateBPS,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindPendingByReservation(ctx, reservation.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pendingConflict(existing)
		}
		if err := repo.Create(ctx, payment); err != nil {
			switch {
			case db.IsUniqueViolation(err, PendingReservationIndex):
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a pending payment already exists for this reservation")
			case db.IsUniqueViolation(err, ClientReferenceIndex), db.IsUniqueViolation(err, SessionIDIndex):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "client reference taken concurrently, retry checkout")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payment")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMarketplacePaymentCreated,
			AggregateType: enums.AggregateMarketplacePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: &in.Caller.UserID, Role: in.Caller.Role.String()},
			Data: payloads.MarketplacePaymentCreatedEvent{
				PaymentID:       payment.ID,
				ReservationID:   payment.ReservationID,
				FieldID:         payment.FieldID,
				ClientReference: payment.ClientReference,
				Provider:        payment.Provider,
				AmountCFA:       payment.AmountCFA,
				FeePlatformCFA:  payment.FeePlatformCFA,
				NetToOwnerCFA:   payment.NetToOwnerCFA,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPaymentID(ctx, payment.ID.String()), "checkout.created")
	}

	return &CheckoutResult{
		PaymentID:       payment.ID,
		SessionID:       sessionID,
		Provider:        payment.Provider,
		CheckoutURL:     session.CheckoutURL,
		ClientReference: ref,
		Amount:          payment.AmountCFA,
		PlatformFee:     fee,
		NetToOwner:      net,
	}, nil
}

// allocateReference draws session ids until the derived client reference is
// unused. The reference keeps only 4 hex digits of the session, so retries for
// one reservation can collide.
func (s *CheckoutService) allocateReference(ctx context.Context, reservationID uuid.UUID) (uuid.UUID, string, error) {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		sessionID := s.newSession()
		ref := ClientReference(reservationID, sessionID)
		_, err := s.repo.FindByClientReference(ctx, ref)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return sessionID, ref, nil
		}
		if err != nil {
			return uuid.Nil, "", err
		}
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "client_reference", ref), "checkout.reference_collision")
		}
	}
	return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique client reference").
		WithDetails(map[string]any{"attempts": maxReferenceAttempts})
}

func (s *CheckoutService) resolveProvider(requested enums.PaymentProvider) (Provider, error) {
	name := requested
	if name == "" {
		name = enums.PaymentProvider(s.cfg.DefaultProvider)
	}
	if !name.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider").
			WithDetails(map[string]any{"provider": string(name)})
	}
	provider, ok := s.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment provider not configured").
			WithDetails(map[string]any{"provider": string(name)})
	}
	return provider, nil
}

func (s *CheckoutService) callProvider(ctx context.Context, provider Provider, req CheckoutRequest) (*ProviderSession, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	started := time.Now()
	session, err := provider.CreateCheckout(callCtx, req)
	if err == nil && (session == nil || session.CheckoutURL == "") {
		err = fmt.Errorf("provider returned no checkout url")
	}
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "elapsed_ms", time.Since(started).Milliseconds())
			s.logg.Error(logCtx, "checkout.provider_failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "payment provider request failed").
			WithDetails(map[string]any{"provider": provider.Name().String()})
	}
	return session, nil
}

// callbackURL appends the provider so IPNs route without header sniffing.
func (s *CheckoutService) callbackURL(provider enums.PaymentProvider) string {
	if s.cfg.CallbackURL == "" {
		return ""
	}
	return s.cfg.CallbackURL + "/" + provider.String()
}

func (s *CheckoutService) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func pendingConflict(existing *models.MarketplacePayment) error {
	details := map[string]any{"payment_id": existing.ID.String()}
	if existing.CheckoutURL != nil {
		details["checkout_url"] = *existing.CheckoutURL
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "a pending payment already exists for this reservation").WithDetails(details)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
