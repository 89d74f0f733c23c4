package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type Store interface {
	AllocateAddresses(ctx context.Context, userID uuid.UUID, networks []string) ([]storage.PoolAddress, error)
	ListAddressesByUser(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error)
	CountAvailableAddresses(ctx context.Context) (map[string]int64, error)
}

type Metrics struct {
	Allocations *prometheus.CounterVec
	Exhaustions *prometheus.CounterVec
	PoolDepth   *prometheus.GaugeVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_allocations_total",
				Help: "Total address-set allocations.",
			},
			[]string{"status"},
		),
		Exhaustions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_exhaustions_total",
				Help: "Total allocations aborted on an empty network pool.",
			},
			[]string{"network"},
		),
		PoolDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pool_available_addresses",
				Help: "Available addresses per network.",
			},
			[]string{"network"},
		),
	}

	registry.MustRegister(m.Allocations, m.Exhaustions, m.PoolDepth)
	return m
}

// Allocator hands out deposit addresses at signup. A user gets one address per
// required network or none at all.
type Allocator struct {
	store    Store
	networks []string
	logger   *slog.Logger
	metrics  *Metrics
}

func NewAllocator(store Store, networks []string, logger *slog.Logger, metrics *Metrics) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:    store,
		networks: networks,
		logger:   logger,
		metrics:  metrics,
	}
}

// Allocate claims the full address set for the user. On exhaustion the whole
// allocation is rolled back and the empty network is reported; the caller must
// abort the signup.
func (a *Allocator) Allocate(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error) {
	addresses, err := a.store.AllocateAddresses(ctx, userID, a.networks)
	if err != nil {
		var exhausted *storage.PoolExhaustedError
		if errors.As(err, &exhausted) {
			if a.metrics != nil {
				a.metrics.Allocations.WithLabelValues("exhausted").Inc()
				a.metrics.Exhaustions.WithLabelValues(exhausted.Network).Inc()
			}
			a.logger.Error("address pool exhausted, signup aborted",
				"user_id", userID, "network", exhausted.Network)
			return nil, err
		}
		if a.metrics != nil {
			a.metrics.Allocations.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("allocate addresses: %w", err)
	}

	if a.metrics != nil {
		a.metrics.Allocations.WithLabelValues("success").Inc()
	}
	a.logger.Info("addresses allocated", "user_id", userID, "count", len(addresses))
	return addresses, nil
}

func (a *Allocator) ListForUser(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error) {
	return a.store.ListAddressesByUser(ctx, userID)
}

// ObserveDepth refreshes the per-network pool depth gauge. Called periodically
// so operators can see a pool running low before signups start failing.
func (a *Allocator) ObserveDepth(ctx context.Context) error {
	counts, err := a.store.CountAvailableAddresses(ctx)
	if err != nil {
		return fmt.Errorf("count available addresses: %w", err)
	}
	for _, network := range a.networks {
		if a.metrics != nil {
			a.metrics.PoolDepth.WithLabelValues(network).Set(float64(counts[network]))
		}
		if counts[network] == 0 {
			a.logger.Warn("address pool empty", "network", network)
		}
	}
	return nil
}

func (a *Allocator) Networks() []string {
	return a.networks
}
