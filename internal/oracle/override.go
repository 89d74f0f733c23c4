package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type OverrideStore interface {
	GetOverride(ctx context.Context, symbol string) (*storage.PriceOverride, error)
	UpdateOverridePrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// OverrideSource produces synthetic prices for pairs with an active override.
// Each read advances a random walk from the persisted last price so the series
// survives restarts. Direction state is in-memory per symbol.
type OverrideSource struct {
	store  OverrideStore
	logger *slog.Logger

	mu         sync.Mutex
	rng        *rand.Rand
	directions map[string]int
}

func NewOverrideSource(store OverrideStore, seed int64, logger *slog.Logger) *OverrideSource {
	if logger == nil {
		logger = slog.Default()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &OverrideSource{
		store:      store,
		logger:     logger,
		rng:        rand.New(rand.NewSource(seed)),
		directions: make(map[string]int),
	}
}

// Price returns (price, true, nil) when an active unexpired override exists,
// (zero, false, nil) when the pair has no effective override, and an error only
// on storage failure.
func (s *OverrideSource) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	override, err := s.store.GetOverride(ctx, symbol)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("load override: %w", err)
	}
	if !override.Active || !override.ExpiresAt.After(time.Now()) {
		return decimal.Zero, false, nil
	}

	next := s.step(override)

	if err := s.store.UpdateOverridePrice(ctx, override.Symbol, next); err != nil {
		return decimal.Zero, false, fmt.Errorf("persist override price: %w", err)
	}
	return next, true, nil
}

// step advances the walk one tick: optional direction flip, a step of
// step_size, a mean-reversion pull toward the target, and an occasional
// multiplicative shock. The result never drops to zero or below.
func (s *OverrideSource) step(override *storage.PriceOverride) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	direction, ok := s.directions[override.Symbol]
	if !ok {
		direction = 1
	}
	if s.rng.Float64() < override.FlipProbability {
		direction = -direction
	}
	s.directions[override.Symbol] = direction

	last := override.LastPrice

	if override.ShockProbability > 0 && s.rng.Float64() < override.ShockProbability {
		next := last.Mul(override.ShockMultiplier)
		if next.IsPositive() {
			return next
		}
		return last
	}

	next := last.Add(override.StepSize.Mul(decimal.NewFromInt(int64(direction))))
	if override.ReversionStrength > 0 && override.ReversionTarget.IsPositive() {
		pull := override.ReversionTarget.Sub(last).Mul(decimal.NewFromFloat(override.ReversionStrength))
		next = next.Add(pull)
	}
	if !next.IsPositive() {
		return last
	}
	return next
}
