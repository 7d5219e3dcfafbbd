package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Payout attempt outcomes.
const (
	PayoutOutcomeSucceeded    = "succeeded"
	PayoutOutcomeRetryable    = "retryable_failure"
	PayoutOutcomeNonRetryable = "non_retryable_failure"
	PayoutOutcomeExhausted    = "exhausted"
)

// PayoutMetrics tracks disbursement attempts per channel.
type PayoutMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_attempts_total",
		Help:      "Payout disbursement attempts by channel and outcome.",
	}, []string{"channel", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payout_channel_latency_seconds",
		Help:      "Latency of payout channel calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"channel"})
	reg.MustRegister(attempts, latency)
	return &PayoutMetrics{attempts: attempts, latency: latency}
}

func (m *PayoutMetrics) ObserveAttempt(channel, outcome string, took time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(normalizeLabel(channel)).Observe(took.Seconds())
}
