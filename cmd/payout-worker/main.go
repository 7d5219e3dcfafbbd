package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fieldbook/fieldbook-backend/api"
	"github.com/fieldbook/fieldbook-backend/internal/bookings"
	"github.com/fieldbook/fieldbook-backend/internal/cron"
	"github.com/fieldbook/fieldbook-backend/internal/gateways"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/db"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/metrics"
	"github.com/fieldbook/fieldbook-backend/pkg/migrate"
	"github.com/fieldbook/fieldbook-backend/pkg/outbox"
	"github.com/fieldbook/fieldbook-backend/pkg/redis"
)

const maintenanceInterval = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "payout-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "payout-worker"

	logg = logger.New(logger.Options{
		ServiceName: "payout-worker",
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

	services, err := buildServices(cfg, logg, dbClient, redisClient, gw, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(ctx, "payout_worker.wiring_failed", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"gateways":    gw.Names(),
	})
	logg.Info(ctx, "payout_worker.starting")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := api.NewServer(":"+cfg.App.Port, metricsMux)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, svc := range services {
		group.Go(func() error { return svc.Run(groupCtx) })
	}
	group.Go(func() error { return api.Serve(groupCtx, metricsSrv, logg) })
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "payout_worker.crashed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "payout_worker.stopped")
}

// buildServices returns the payout sweep, which runs every SweepInterval, and
// the daily maintenance cycle. Each holds its own lock so a slow retention
// pass never delays retries.
func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gw *gateways.Gateways,
	reg prometheus.Registerer,
) ([]*cron.Service, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	dispatcher, err := payouts.NewDispatcher(payouts.Deps{
		Tx:       dbClient,
		Repo:     payouts.NewRepository(conn),
		Fields:   bookings.NewRepository(conn),
		Channels: gw.PayoutChannels(),
		Outbox:   outbox.NewService(outboxRepo, logg),
		Metrics:  metrics.NewPayoutMetrics(reg),
		Logger:   logg,
		Options:  payouts.OptionsFromConfig(cfg.Payouts, cfg.Marketplace.Currency),
	})
	if err != nil {
		return nil, fmt.Errorf("payout dispatcher: %w", err)
	}

	retryJob, err := cron.NewPayoutRetryJob(cron.PayoutRetryJobParams{Logger: logg, Dispatcher: dispatcher})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	sweep, err := newCronService(logg, redisClient, cronMetrics, "payout_retry", cfg.Payouts.SweepInterval, retryJob)
	if err != nil {
		return nil, err
	}
	maintenance, err := newCronService(logg, redisClient, cronMetrics, "outbox_retention", maintenanceInterval, retentionJob)
	if err != nil {
		return nil, err
	}
	return []*cron.Service{sweep, maintenance}, nil
}

func newCronService(logg *logger.Logger, redisClient *redis.Client, m *metrics.CronJobMetrics, name string, interval time.Duration, jobs ...cron.Job) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(name), cron.LeaseFor(interval))
	if err != nil {
		return nil, fmt.Errorf("%s lock: %w", name, err)
	}
	return cron.NewService(cron.ServiceParams{
		Name:     name,
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
		Interval: interval,
	})
}
