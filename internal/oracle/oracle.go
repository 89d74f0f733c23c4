package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable means no reference price could be produced for the pair right
// now. Callers treat it as a transient per-pair condition, not a failure of the
// oracle as a whole.
var ErrUnavailable = errors.New("reference price unavailable")

// Source produces a reference price for a trading pair.
type Source interface {
	ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Oracle composes the synthetic override source with the external market
// source. An active, unexpired override shadows the market price.
type Oracle struct {
	override *OverrideSource
	market   Source
	timeout  time.Duration
	logger   *slog.Logger
}

func New(override *OverrideSource, market Source, timeout time.Duration, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Oracle{
		override: override,
		market:   market,
		timeout:  timeout,
		logger:   logger,
	}
}

func (o *Oracle) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if o.override != nil {
		price, ok, err := o.override.Price(ctx, symbol)
		if err != nil {
			o.logger.Warn("override source failed", "symbol", symbol, "error", err)
			return decimal.Zero, ErrUnavailable
		}
		if ok {
			return price, nil
		}
	}

	if o.market == nil {
		return decimal.Zero, ErrUnavailable
	}
	price, err := o.market.ReferencePrice(ctx, symbol)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			o.logger.Warn("market source failed", "symbol", symbol, "error", err)
		}
		return decimal.Zero, ErrUnavailable
	}
	return price, nil
}
