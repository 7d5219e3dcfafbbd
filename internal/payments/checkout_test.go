package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db"
	"github.com/fieldbook/fieldbook-backend/pkg/db/dbtest"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
)

type fakeProvider struct {
	mu    sync.Mutex
	name  enums.PaymentProvider
	err   error
	delay time.Duration
	calls []CheckoutRequest
	// during runs inside the provider call, before the payment row is written
	during func(req CheckoutRequest)
}

func (f *fakeProvider) Name() enums.PaymentProvider { return f.name }

func (f *fakeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.during != nil {
		f.during(req)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ProviderSession{
		CheckoutURL: "https://pay.test/" + req.ClientReference,
		Token:       "tok-" + req.SessionID.String(),
	}, nil
}

type fixture struct {
	conn        *gorm.DB
	reservation models.Reservation
	field       models.Field
	provider    *fakeProvider
	svc         *CheckoutService
}

func newFixture(t *testing.T, amount int64, bps int) *fixture {
	t.Helper()
	conn := dbtest.Open(t)

	channel := enums.PayoutChannelWave
	field := models.Field{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		Name:              "Terrain Ouakam",
		CommissionRateBPS: bps,
		PayoutChannel:     &channel,
		PayoutDestination: types.PayoutDestination{Mobile: "+221771234567"},
	}
	require.NoError(t, conn.Create(&field).Error)
	reservation := models.Reservation{ID: uuid.New(), FieldID: field.ID, UserID: uuid.New(), AmountCFA: amount, Status: "confirmed"}
	require.NoError(t, conn.Create(&reservation).Error)

	provider := &fakeProvider{name: enums.PaymentProviderPayDunya}
	bookingRepo := bookings.NewRepository(conn)
	svc, err := NewCheckoutService(CheckoutDeps{
		Tx:           db.NewFromGorm(conn),
		Repo:         NewRepository(conn),
		Reservations: bookingRepo,
		Fields:       bookingRepo,
		Providers:    NewProviders(provider),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), nil),
		Config: config.MarketplaceConfig{
			DefaultProvider: "paydunya",
			CallbackURL:     "https://api.fieldbook.test/marketplace/webhook",
			Currency:        "XOF",
			ProviderTimeout: time.Second,
		},
	})
	require.NoError(t, err)

	return &fixture{conn: conn, reservation: reservation, field: field, provider: provider, svc: svc}
}

func (f *fixture) owner() Caller {
	return Caller{UserID: f.reservation.UserID, Role: enums.UserRolePlayer}
}

func TestCreateCheckoutSplitsCommission(t *testing.T) {
	f := newFixture(t, 10000, 1000)

	res, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)

	assert.Equal(t, int64(10000), res.Amount)
	assert.Equal(t, int64(1000), res.PlatformFee)
	assert.Equal(t, int64(9000), res.NetToOwner)
	assert.Equal(t, ClientReference(f.reservation.ID, res.SessionID), res.ClientReference)
	assert.Equal(t, enums.PaymentProviderPayDunya, res.Provider)

	var stored models.MarketplacePayment
	require.NoError(t, f.conn.First(&stored, "id = ?", res.PaymentID).Error)
	assert.Equal(t, enums.MarketplacePaymentPending, stored.Status)
	assert.Equal(t, int64(1000), stored.FeePlatformCFA)
	assert.Equal(t, int64(9000), stored.NetToOwnerCFA)
	assert.Equal(t, 1000, stored.CommissionRateBPS)
	assert.Equal(t, f.reservation.UserID, stored.PayerUserID)
	require.NotNil(t, stored.ProviderToken)
	assert.Equal(t, "tok-"+res.SessionID.String(), *stored.ProviderToken)
	assert.Nil(t, stored.WebhookReceivedAt)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventMarketplacePaymentCreated, events[0].EventType)

	require.Len(t, f.provider.calls, 1)
	assert.Equal(t, "https://api.fieldbook.test/marketplace/webhook/paydunya", f.provider.calls[0].CallbackURL)
}

func TestCreateCheckoutConflictsWhilePending(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	ctx := context.Background()

	first, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)

	_, err = f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, first.PaymentID.String(), details["payment_id"])
	assert.Equal(t, first.CheckoutURL, details["checkout_url"])

	assert.Len(t, f.provider.calls, 1, "conflict must be detected before calling the provider")
}

func TestCreateCheckoutAllowsRetryAfterTerminal(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	ctx := context.Background()

	first, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.MarketplacePayment{}).
		Where("id = ?", first.PaymentID).
		Update("status", enums.MarketplacePaymentExpired).Error)

	second, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	assert.NotEqual(t, first.ClientReference, second.ClientReference)
}

func TestCreateCheckoutProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	f.provider.err = errors.New("paydunya: status 503")

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProvider))

	var count int64
	require.NoError(t, f.conn.Model(&models.MarketplacePayment{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateCheckoutProviderTimeout(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	f.provider.delay = 50 * time.Millisecond
	f.svc.cfg.ProviderTimeout = 5 * time.Millisecond

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeProvider))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateCheckoutPreconditions(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	ctx := context.Background()

	_, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: uuid.New(), Caller: f.owner()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: Caller{UserID: uuid.New(), Role: enums.UserRolePlayer}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Provider: enums.PaymentProviderStripe, Caller: f.owner()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "stripe is not configured in this fixture")

	admin := Caller{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	_, err = f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: admin})
	assert.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Reservation{}).Where("id = ?", f.reservation.ID).Update("status", bookings.ReservationStatusPaid).Error)
	_, err = f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCreateCheckoutRejectsInvalidCommission(t *testing.T) {
	f := newFixture(t, 10000, 12000)

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.provider.calls)
}

func TestPendingIndexRejectsSecondPendingRow(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	repo := NewRepository(f.conn)
	ctx := context.Background()

	mk := func() *models.MarketplacePayment {
		session := uuid.New()
		return &models.MarketplacePayment{
			ReservationID:   f.reservation.ID,
			FieldID:         f.field.ID,
			PayerUserID:     f.reservation.UserID,
			ClientReference: ClientReference(f.reservation.ID, session),
			SessionID:       session,
			Provider:        enums.PaymentProviderPayDunya,
			Status:          enums.MarketplacePaymentPending,
			AmountCFA:       10000,
			FeePlatformCFA:  1000,
			NetToOwnerCFA:   9000,
		}
	}
	require.NoError(t, repo.Create(ctx, mk()))
	err := repo.Create(ctx, mk())
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, PendingReservationIndex))
}

func (f *fixture) seedPayment(t *testing.T, sessionID uuid.UUID, status enums.MarketplacePaymentStatus) models.MarketplacePayment {
	t.Helper()
	payment := models.MarketplacePayment{
		ReservationID:   f.reservation.ID,
		FieldID:         f.field.ID,
		PayerUserID:     f.reservation.UserID,
		ClientReference: ClientReference(f.reservation.ID, sessionID),
		SessionID:       sessionID,
		Provider:        enums.PaymentProviderPayDunya,
		Status:          status,
		AmountCFA:       10000,
		FeePlatformCFA:  1000,
		NetToOwnerCFA:   9000,
	}
	require.NoError(t, f.conn.Create(&payment).Error)
	return payment
}

func sessionSequence(ids ...uuid.UUID) func() uuid.UUID {
	i := 0
	return func() uuid.UUID {
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	}
}

func TestCreateCheckoutRedrawsCollidingReference(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	taken := f.seedPayment(t, uuid.MustParse("abcd0000-0000-4000-8000-000000000001"), enums.MarketplacePaymentFailed)

	colliding := uuid.MustParse("abcd9999-0000-4000-8000-000000000002")
	fresh := uuid.MustParse("12340000-0000-4000-8000-000000000003")
	require.Equal(t, taken.ClientReference, ClientReference(f.reservation.ID, colliding))
	f.svc.newSession = sessionSequence(colliding, fresh)

	res, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)
	assert.Equal(t, fresh, res.SessionID)
	assert.Equal(t, ClientReference(f.reservation.ID, fresh), res.ClientReference)
	assert.NotEqual(t, taken.ClientReference, res.ClientReference)

	require.Len(t, f.provider.calls, 1)
	assert.Equal(t, res.ClientReference, f.provider.calls[0].ClientReference)
}

func TestCreateCheckoutStopsBeforeProviderWhenReferencesExhausted(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	taken := f.seedPayment(t, uuid.MustParse("abcd0000-0000-4000-8000-000000000001"), enums.MarketplacePaymentExpired)
	f.svc.newSession = sessionSequence(taken.SessionID)

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	assert.Empty(t, f.provider.calls)

	var count int64
	require.NoError(t, f.conn.Model(&models.MarketplacePayment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateCheckoutReferenceTakenDuringProviderCall(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	session := uuid.MustParse("beef0000-0000-4000-8000-000000000001")
	f.svc.newSession = sessionSequence(session)
	f.provider.during = func(CheckoutRequest) {
		// a concurrent writer lands the same reference as a closed payment
		f.seedPayment(t, uuid.MustParse("beef1111-0000-4000-8000-000000000002"), enums.MarketplacePaymentFailed)
	}

	_, err := f.svc.CreateCheckout(context.Background(), CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "no pending payment exists, so this is not a pending conflict")

	var pending int64
	require.NoError(t, f.conn.Model(&models.MarketplacePayment{}).Where("status = ?", enums.MarketplacePaymentPending).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestClientReferenceIndexIsDistinguished(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	existing := f.seedPayment(t, uuid.MustParse("cafe0000-0000-4000-8000-000000000001"), enums.MarketplacePaymentFailed)

	dup := existing
	dup.ID = uuid.Nil
	dup.SessionID = uuid.MustParse("cafe1111-0000-4000-8000-000000000002")
	err := NewRepository(f.conn).Create(context.Background(), &dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ClientReferenceIndex))
	assert.False(t, db.IsUniqueViolation(err, PendingReservationIndex))
}
