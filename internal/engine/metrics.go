package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TicksTotal       *prometheus.CounterVec
	TickDuration     prometheus.Histogram
	OrdersScanned    prometheus.Counter
	OrdersFilled     prometheus.Counter
	SettlementErrors *prometheus.CounterVec
	OracleCalls      *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_ticks_total",
				Help: "Total engine ticks.",
			},
			[]string{"outcome"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_tick_duration_seconds",
				Help:    "Engine tick duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		OrdersScanned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_orders_scanned_total",
				Help: "Total open orders examined.",
			},
		),
		OrdersFilled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_orders_filled_total",
				Help: "Total orders filled.",
			},
		),
		SettlementErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_settlement_errors_total",
				Help: "Total settlement errors.",
			},
			[]string{"type"},
		),
		OracleCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_oracle_calls_total",
				Help: "Total oracle reference price calls.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.OrdersScanned,
		m.OrdersFilled,
		m.SettlementErrors,
		m.OracleCalls,
	)
	return m
}

func (m *Metrics) ObserveTick(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(duration.Seconds())
}
