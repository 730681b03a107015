package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts reconciled billing events by type and outcome.
type WebhookMetrics struct {
	outcomes  *prometheus.CounterVec
	conflicts prometheus.Counter
	latency   *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Billing webhook events by canonical type and outcome.",
	}, []string{"type", "outcome"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_apply_conflicts_total",
		Help:      "Conditional account updates that lost a race and were re-derived.",
	})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_reconcile_seconds",
		Help:      "Time spent reconciling one billing event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
	reg.MustRegister(outcomes, conflicts, latency)
	return &WebhookMetrics{outcomes: outcomes, conflicts: conflicts, latency: latency}
}

func (m *WebhookMetrics) IncOutcome(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(label(eventType), label(outcome)).Inc()
}

func (m *WebhookMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *WebhookMetrics) ObserveLatency(eventType string, d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(label(eventType)).Observe(d.Seconds())
}
