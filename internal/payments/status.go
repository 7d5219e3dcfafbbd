package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
)

type payoutLookup interface {
	FindLatestByPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error)
}

// StatusService answers read-only payment status queries.
type StatusService struct {
	repo         *Repository
	reservations bookings.ReservationReader
	payouts      payoutLookup
}

func NewStatusService(repo *Repository, reservations bookings.ReservationReader, payouts payoutLookup) (*StatusService, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation reader required")
	}
	return &StatusService{repo: repo, reservations: reservations, payouts: payouts}, nil
}

func (s *StatusService) GetPaymentStatus(ctx context.Context, paymentID uuid.UUID, caller Caller) (*PaymentStatus, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, payment, caller); err != nil {
		return nil, err
	}

	out := &PaymentStatus{
		PaymentID:       payment.ID,
		Status:          payment.Status,
		Amount:          payment.AmountCFA,
		ClientReference: payment.ClientReference,
	}
	if s.payouts != nil {
		payout, err := s.payouts.FindLatestByPayment(ctx, payment.ID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		out.Payout = newPayoutSummary(payout)
	}
	return out, nil
}

func (s *StatusService) authorize(ctx context.Context, payment *models.MarketplacePayment, caller Caller) error {
	if caller.IsAdmin() || (caller.UserID != uuid.Nil && caller.UserID == payment.PayerUserID) {
		return nil
	}
	reservation, err := s.reservations.GetReservation(ctx, payment.ReservationID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
		}
		return err
	}
	if caller.UserID == uuid.Nil || reservation.UserID != caller.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return nil
}
