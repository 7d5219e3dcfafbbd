package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook delivery results.
const (
	WebhookResultApplied      = "applied"
	WebhookResultNoop         = "noop"
	WebhookResultDuplicate    = "duplicate"
	WebhookResultRejected     = "rejected"
	WebhookResultNotFound     = "not_found"
	WebhookResultConflict     = "conflict"
	WebhookResultError        = "error"
	WebhookResultUnauthorized = "unauthorized"
)

// WebhookMetrics counts provider webhook deliveries by result.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Payment provider webhook deliveries by provider and result.",
	}, []string{"provider", "result"})
	reg.MustRegister(deliveries)
	return &WebhookMetrics{deliveries: deliveries}
}

func (m *WebhookMetrics) Inc(provider, result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}
