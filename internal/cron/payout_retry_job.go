package cron

import (
	"context"
	"fmt"

	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

type payoutSweeper interface {
	RetryDue(ctx context.Context) (payouts.SweepResult, error)
}

type PayoutRetryJobParams struct {
	Logger     *logger.Logger
	Dispatcher payoutSweeper
}

// NewPayoutRetryJob re-attempts payouts whose backoff has elapsed and adopts
// processing rows whose first attempt never ran.
func NewPayoutRetryJob(params PayoutRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("payout dispatcher required")
	}
	return &payoutRetryJob{logg: params.Logger, dispatcher: params.Dispatcher}, nil
}

type payoutRetryJob struct {
	logg       *logger.Logger
	dispatcher payoutSweeper
}

func (j *payoutRetryJob) Name() string { return "payout-retry" }

func (j *payoutRetryJob) Run(ctx context.Context) error {
	res, err := j.dispatcher.RetryDue(ctx)
	if res.Scanned > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned":     res.Scanned,
			"succeeded":   res.Succeeded,
			"failed":      res.Failed,
			"rescheduled": res.Rescheduled,
			"skipped":     res.Skipped,
		})
		j.logg.Info(logCtx, "payout.sweep_complete")
	}
	if err != nil {
		return fmt.Errorf("payout retry sweep: %w", err)
	}
	return nil
}
