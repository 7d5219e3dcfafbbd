package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldbook/fieldbook-backend/api/controllers"
	"github.com/fieldbook/fieldbook-backend/api/middleware"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

// Store is the Redis surface the HTTP layer needs for replay and rate limits.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
	RateLimitKey(scope string) string
}

type Services struct {
	Checkout   controllers.CheckoutService
	Status     controllers.PaymentStatusService
	Reconciler controllers.WebhookReconciler
	Payouts    controllers.PayoutAdmin
}

// Probes lists the dependencies checked by /health/ready.
type Probes map[string]controllers.Pinger

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store Store,
	gatherer prometheus.Gatherer,
	probes Probes,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	policy := middleware.NewRateLimitPolicy(
		"marketplace",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)
	idempotent := middleware.Idempotency(store, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, probes))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/marketplace", func(r chi.Router) {
		// Providers call these unauthenticated; the reconciler verifies signatures.
		r.Post("/webhook", controllers.MarketplaceWebhook(svc.Reconciler, logg))
		r.Post("/webhook/{provider}", controllers.MarketplaceWebhook(svc.Reconciler, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(policy, store, logg))

			r.With(idempotent).Post("/checkout", controllers.MarketplaceCheckout(svc.Checkout, logg))
			r.Get("/payment/{id}/status", controllers.MarketplacePaymentStatus(svc.Status, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
				r.With(idempotent).Post("/payouts/{id}/cancel", controllers.AdminCancelPayout(svc.Payouts, logg))
				r.Post("/payouts/retry", controllers.AdminRetryPayouts(svc.Payouts, logg))
			})
		})
	})

	return r
}
