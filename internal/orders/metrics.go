package orders

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	OrderRejections *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total orders accepted.",
			},
			[]string{"side", "type"},
		),
		OrdersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total orders cancelled.",
			},
			[]string{"outcome"},
		),
		OrderRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total order placements rejected.",
			},
			[]string{"reason"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_publish_failures_total",
				Help: "Total order event publish failures.",
			},
			[]string{"topic"},
		),
	}

	registry.MustRegister(
		m.OrdersPlaced,
		m.OrdersCancelled,
		m.OrderRejections,
		m.PublishFailures,
	)
	return m
}
