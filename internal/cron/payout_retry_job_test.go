package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

type fakeSweeper struct {
	res   payouts.SweepResult
	err   error
	calls int
}

func (f *fakeSweeper) RetryDue(context.Context) (payouts.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

func TestPayoutRetryJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{res: payouts.SweepResult{Scanned: 3, Succeeded: 2, Rescheduled: 1}}
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{Logger: logger.Nop(), Dispatcher: sweeper})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}
	if job.Name() != "payout-retry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestPayoutRetryJobReturnsSweepError(t *testing.T) {
	sweeper := &fakeSweeper{res: payouts.SweepResult{Scanned: 1}, err: errors.New("db down")}
	job, err := NewPayoutRetryJob(PayoutRetryJobParams{Logger: logger.Nop(), Dispatcher: sweeper})
	if err != nil {
		t.Fatalf("NewPayoutRetryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPayoutRetryJobRequiresDispatcher(t *testing.T) {
	if _, err := NewPayoutRetryJob(PayoutRetryJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error")
	}
}
