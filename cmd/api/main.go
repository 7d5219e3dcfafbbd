package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fieldbook/fieldbook-backend/api"
	"github.com/fieldbook/fieldbook-backend/api/routes"
	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/internal/gateways"
	"github.com/fieldbook/fieldbook-backend/internal/payments"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/internal/webhooks/marketplace"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/metrics"
	"github.com/fieldbook/fieldbook-backend/pkg/migrate"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "db.bootstrap_failed", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "db.close_failed", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "migrate.dev_failed", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "redis.bootstrap_failed", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "redis.close_failed", err)
		}
	}()

	gw, err := gateways.New(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "gateways.bootstrap_failed", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := buildServices(cfg, logg, dbClient, redisClient, gw, registry)
	if err != nil {
		logg.Error(ctx, "api.wiring_failed", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"gateways": gw.Names(),
	})
	logg.Info(ctx, "api.starting")

	handler := routes.NewRouter(cfg, logg, redisClient, registry, routes.Probes{
		"database": dbClient,
		"redis":    redisClient,
	}, svc)

	if err := api.Serve(ctx, api.NewServer(addr, handler), logg); err != nil {
		logg.Error(ctx, "api.crashed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api.stopped")
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gw *gateways.Gateways,
	reg prometheus.Registerer,
) (routes.Services, error) {
	conn := dbClient.DB()
	bookingRepo := bookings.NewRepository(conn)
	paymentRepo := payments.NewRepository(conn)
	payoutRepo := payouts.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	checkout, err := payments.NewCheckoutService(payments.CheckoutDeps{
		Tx:           dbClient,
		Repo:         paymentRepo,
		Reservations: bookingRepo,
		Fields:       bookingRepo,
		Providers:    gw.CheckoutProviders(),
		Outbox:       emitter,
		Config:       cfg.Marketplace,
		Logger:       logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	status, err := payments.NewStatusService(paymentRepo, bookingRepo, payoutRepo)
	if err != nil {
		return routes.Services{}, err
	}

	dispatcher, err := payouts.NewDispatcher(payouts.Deps{
		Tx:       dbClient,
		Repo:     payoutRepo,
		Fields:   bookingRepo,
		Channels: gw.PayoutChannels(),
		Outbox:   emitter,
		Metrics:  metrics.NewPayoutMetrics(reg),
		Logger:   logg,
		Options:  payouts.OptionsFromConfig(cfg.Payouts, cfg.Marketplace.Currency),
	})
	if err != nil {
		return routes.Services{}, err
	}

	guard, err := marketplace.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return routes.Services{}, err
	}

	reconciler, err := marketplace.NewReconciler(marketplace.Deps{
		Tx:        dbClient,
		Payments:  paymentRepo,
		Fields:    bookingRepo,
		Payouts:   dispatcher,
		Outbox:    emitter,
		Verifiers: gw.Verifiers(),
		Guard:     guard,
		Metrics:   metrics.NewWebhookMetrics(reg),
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Checkout:   checkout,
		Status:     status,
		Reconciler: reconciler,
		Payouts:    dispatcher,
	}, nil
}
