package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
)

type stubPayouts struct {
	payout *models.Payout
}

func (s stubPayouts) FindLatestByPayment(_ context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	if s.payout == nil || s.payout.MarketplacePaymentID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return s.payout, nil
}

func TestGetPaymentStatus(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	ctx := context.Background()

	res, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)

	next := time.Now().UTC().Add(time.Minute)
	payouts := stubPayouts{payout: &models.Payout{
		ID:                   uuid.New(),
		MarketplacePaymentID: res.PaymentID,
		Channel:              enums.PayoutChannelWave,
		AmountCFA:            9000,
		Status:               enums.PayoutStatusProcessing,
		RetryCount:           2,
		NextRetryAt:          &next,
	}}
	svc, err := NewStatusService(NewRepository(f.conn), bookings.NewRepository(f.conn), payouts)
	require.NoError(t, err)

	status, err := svc.GetPaymentStatus(ctx, res.PaymentID, f.owner())
	require.NoError(t, err)
	assert.Equal(t, enums.MarketplacePaymentPending, status.Status)
	assert.Equal(t, int64(10000), status.Amount)
	assert.Equal(t, res.ClientReference, status.ClientReference)
	require.NotNil(t, status.Payout)
	assert.Equal(t, 2, status.Payout.RetryCount)
	assert.Equal(t, int64(9000), status.Payout.Amount)

	_, err = svc.GetPaymentStatus(ctx, res.PaymentID, Caller{UserID: uuid.New(), Role: enums.UserRoleOwner})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = svc.GetPaymentStatus(ctx, res.PaymentID, Caller{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	assert.NoError(t, err)

	_, err = svc.GetPaymentStatus(ctx, uuid.New(), f.owner())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetPaymentStatusWithoutPayout(t *testing.T) {
	f := newFixture(t, 10000, 1000)
	ctx := context.Background()
	res, err := f.svc.CreateCheckout(ctx, CheckoutInput{ReservationID: f.reservation.ID, Caller: f.owner()})
	require.NoError(t, err)

	svc, err := NewStatusService(NewRepository(f.conn), bookings.NewRepository(f.conn), stubPayouts{})
	require.NoError(t, err)
	status, err := svc.GetPaymentStatus(ctx, res.PaymentID, f.owner())
	require.NoError(t, err)
	assert.Nil(t, status.Payout)
}
