package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess      = "success"
	OutcomeOutOfStock   = "out_of_stock"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// InventoryMetrics tracks stock movements driven by purchases and checkouts.
type InventoryMetrics struct {
	purchases *prometheus.CounterVec
	checkouts *prometheus.CounterVec
	unitsSold prometheus.Counter
	restocked prometheus.Counter
	lowStock  prometheus.Gauge
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	m := &InventoryMetrics{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Single unit purchase attempts by outcome.",
		}, []string{"outcome"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		unitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Units removed from stock by purchases and checkouts.",
		}),
		restocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_restocked_total",
			Help:      "Units added to stock by restocks.",
		}),
		lowStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_sweets",
			Help:      "Sweets at or below the low stock threshold at the last report.",
		}),
	}
	reg.MustRegister(m.purchases, m.checkouts, m.unitsSold, m.restocked, m.lowStock)
	return m
}

// ObservePurchase records a purchase attempt.
func (m *InventoryMetrics) ObservePurchase(outcome string) {
	if m == nil || m.purchases == nil {
		return
	}
	m.purchases.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeSuccess {
		m.unitsSold.Inc()
	}
}

// ObserveCheckout records a checkout attempt and the units it removed.
func (m *InventoryMetrics) ObserveCheckout(outcome string, units int) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == OutcomeSuccess && units > 0 {
		m.unitsSold.Add(float64(units))
	}
}

// ObserveRestock records units added back to stock.
func (m *InventoryMetrics) ObserveRestock(units int) {
	if m == nil || m.restocked == nil || units <= 0 {
		return
	}
	m.restocked.Add(float64(units))
}

// SetLowStock publishes the size of the latest low stock report.
func (m *InventoryMetrics) SetLowStock(count int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(count))
}
