package payouts

import (
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = time.Hour
)

// Backoff returns the delay before the next attempt after `attempt` failed
// attempts: base * 2^(attempt-1), capped.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if limit <= 0 {
		limit = defaultBackoffCap
	}
	if attempt < 1 {
		attempt = 1
	}
	b := retry.WithCappedDuration(limit, retry.NewExponential(base))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}
