package ledger

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	CreditsTotal      *prometheus.CounterVec
	BalanceLookups    *prometheus.CounterVec
	LockDiscrepancies prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CreditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_credits_total",
				Help: "Total ledger credits applied.",
			},
			[]string{"reason", "status"},
		),
		BalanceLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_lookups_total",
				Help: "Total balance lookups.",
			},
			[]string{"status"},
		),
		LockDiscrepancies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_lock_discrepancies",
				Help: "Lock discrepancies found by the last reconcile sweep.",
			},
		),
	}

	registry.MustRegister(
		m.CreditsTotal,
		m.BalanceLookups,
		m.LockDiscrepancies,
	)
	return m
}
