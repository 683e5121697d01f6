package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records processing outcomes for inbound billing events.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	rejected  prometheus.Counter
	duplicate prometheus.Counter
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Billing webhook events received, by event type.",
	}, []string{"type"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed_total",
		Help: "Billing webhook events processed, by event type and outcome.",
	}, []string{"type", "outcome"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_rejected_total",
		Help: "Billing webhook requests rejected before processing (bad signature).",
	})
	duplicate := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_duplicate_total",
		Help: "Billing webhook events skipped as already processed.",
	})
	reg.MustRegister(received, outcomes, rejected, duplicate)
	return &WebhookMetrics{
		received:  received,
		outcomes:  outcomes,
		rejected:  rejected,
		duplicate: duplicate,
	}
}

// IncReceived counts an event that passed signature verification.
func (m *WebhookMetrics) IncReceived(eventType string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncOutcome counts a processing outcome for the event type.
func (m *WebhookMetrics) IncOutcome(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncRejected counts a signature rejection.
func (m *WebhookMetrics) IncRejected() {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.Inc()
}

// IncDuplicate counts a duplicate delivery.
func (m *WebhookMetrics) IncDuplicate() {
	if m == nil || m.duplicate == nil {
		return
	}
	m.duplicate.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
