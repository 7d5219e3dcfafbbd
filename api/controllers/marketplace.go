package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/api/middleware"
	"github.com/fieldbook/fieldbook-backend/api/responses"
	"github.com/fieldbook/fieldbook-backend/api/validators"
	"github.com/fieldbook/fieldbook-backend/internal/payments"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/internal/webhooks/marketplace"
	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	pkgerrors "github.com/fieldbook/fieldbook-backend/pkg/errors"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/wave"
)

const maxWebhookBody = 1 << 20

type CheckoutService interface {
	CreateCheckout(ctx context.Context, in payments.CheckoutInput) (*payments.CheckoutResult, error)
}

type PaymentStatusService interface {
	GetPaymentStatus(ctx context.Context, paymentID uuid.UUID, caller payments.Caller) (*payments.PaymentStatus, error)
}

type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, in marketplace.WebhookInput) (*marketplace.Result, error)
}

type PayoutAdmin interface {
	Cancel(ctx context.Context, payoutID, actorID uuid.UUID) (*models.Payout, error)
	RetryDue(ctx context.Context) (payouts.SweepResult, error)
}

type checkoutRequest struct {
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
	Provider      string `json:"provider" validate:"omitempty,oneof=paydunya wave_direct stripe"`
}

// MarketplaceCheckout opens a provider checkout session for a reservation.
func MarketplaceCheckout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		reservationID, err := uuid.Parse(req.ReservationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation_id"))
			return
		}

		result, err := svc.CreateCheckout(ctx, payments.CheckoutInput{
			ReservationID: reservationID,
			Provider:      enums.PaymentProvider(req.Provider),
			Caller:        caller,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

func MarketplacePaymentStatus(svc PaymentStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		status, err := svc.GetPaymentStatus(ctx, paymentID, caller)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// MarketplaceWebhook receives provider notifications. The raw body is handed
// to the reconciler untouched because signatures are computed over it.
func MarketplaceWebhook(svc WebhookReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		provider, err := resolveWebhookProvider(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "provider", provider.String())
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.HandleWebhook(ctx, marketplace.WebhookInput{
			Provider: provider,
			Header:   r.Header,
			Body:     body,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil && result.Applied {
			logg.Info(logg.WithField(ctx, "status", string(result.Status)), "webhook.applied")
		}
		responses.WriteSuccess(w, result)
	}
}

// resolveWebhookProvider prefers the path or query parameter, then the
// signature header, and finally defaults to PayDunya which sends neither.
func resolveWebhookProvider(r *http.Request) (enums.PaymentProvider, error) {
	raw := chi.URLParam(r, "provider")
	if raw == "" {
		raw = r.URL.Query().Get("provider")
	}
	if raw = strings.TrimSpace(strings.ToLower(raw)); raw != "" {
		if raw == "wave" {
			return enums.PaymentProviderWaveDirect, nil
		}
		p, err := enums.ParsePaymentProvider(raw)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown webhook provider")
		}
		return p, nil
	}
	switch {
	case r.Header.Get("Stripe-Signature") != "":
		return enums.PaymentProviderStripe, nil
	case r.Header.Get(wave.SignatureHeader) != "":
		return enums.PaymentProviderWaveDirect, nil
	default:
		return enums.PaymentProviderPayDunya, nil
	}
}

func AdminCancelPayout(svc PayoutAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		caller, err := callerFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payoutID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout id"))
			return
		}

		payout, err := svc.Cancel(ctx, payoutID, caller.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payout_id": payout.ID,
			"status":    payout.Status,
		})
	}
}

// AdminRetryPayouts runs one retry sweep synchronously and reports its counts.
func AdminRetryPayouts(svc PayoutAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result, err := svc.RetryDue(ctx)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "payout.manual_sweep_partial", err)
			}
		}
		responses.WriteSuccess(w, result)
	}
}

func callerFromContext(ctx context.Context) (payments.Caller, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return payments.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return payments.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller role")
	}
	return payments.Caller{UserID: userID, Role: role}, nil
}
