package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics is fed from the order event stream, not from request handlers, so it
// counts what was committed.
type OrderMetrics struct {
	Events      *prometheus.CounterVec
	PlacedCents prometheus.Counter
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "orders",
		Name:      "events_total",
		Help:      "Order lifecycle events consumed, by type.",
	}, []string{"type"})
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "orders",
		Name:      "placed_amount_cents_total",
		Help:      "Sum of order totals at placement, in cents.",
	})
	reg.MustRegister(events, placed)
	return &OrderMetrics{Events: events, PlacedCents: placed}
}
