package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion results.
const (
	IngestStored    = "stored"
	IngestDuplicate = "duplicate"
	IngestRejected  = "rejected"
	IngestError     = "error"
)

// Processing outcomes beyond the ledger statuses.
const OutcomeDeadLettered = "dead_lettered"

// WebhookMetrics counts ledger traffic.
type WebhookMetrics struct {
	received       *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	claimConflicts *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on reg. A nil registerer
// yields a no-op collector.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_received_total",
		Help:      "Stripe webhook deliveries by ingestion result.",
	}, []string{"result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "events_processed_total",
		Help:      "Webhook processing attempts by outcome.",
	}, []string{"outcome", "driver"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhooks",
		Name:      "claim_conflicts_total",
		Help:      "Claims lost to another worker.",
	}, []string{"driver"})
	reg.MustRegister(received, outcomes, conflicts)
	return &WebhookMetrics{
		received:       received,
		outcomes:       outcomes,
		claimConflicts: conflicts,
	}
}

// IncReceived counts one delivery.
func (m *WebhookMetrics) IncReceived(result string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(labelOrUnknown(result)).Inc()
}

// IncOutcome counts one processing attempt.
func (m *WebhookMetrics) IncOutcome(outcome, driver string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(labelOrUnknown(outcome), labelOrUnknown(driver)).Inc()
}

func (m *WebhookMetrics) IncClaimConflict(driver string) {
	if m == nil || m.claimConflicts == nil {
		return
	}
	m.claimConflicts.WithLabelValues(labelOrUnknown(driver)).Inc()
}
