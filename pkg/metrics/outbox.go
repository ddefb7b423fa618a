package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DeliveryPublished    = "published"
	DeliveryRetry        = "retry"
	DeliveryDeadLettered = "dead_lettered"
)

// OutboxMetrics counts outbox deliveries by event type and outcome.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox delivery counter. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_deliveries_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(deliveries)
	return &OutboxMetrics{deliveries: deliveries}
}

func (m *OutboxMetrics) ObserveDelivery(eventType, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
