package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/oracle"
	"github.com/juhanncheong/wallet-backend-sub000/internal/orders"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

type Store interface {
	ListOpenOrders(ctx context.Context, limit int) ([]storage.Order, error)
	SettleOrder(ctx context.Context, plan storage.SettlementPlan) (*storage.Trade, error)
}

type Config struct {
	TickInterval  time.Duration
	BatchSize     int
	SettleTimeout time.Duration
}

// TickReport summarizes one engine pass over the open orders.
type TickReport struct {
	Scanned int
	Filled  int
	Skipped int
	Errors  int
}

// Engine walks the open orders on a timer and fills any order whose limit
// price has been reached by the reference price. Fills settle at the order's
// limit price. At most one tick runs at a time.
type Engine struct {
	store    Store
	oracle   oracle.Source
	producer kafka.Publisher
	topic    string
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics

	mu sync.Mutex
}

func New(store Store, priceSource oracle.Source, producer kafka.Publisher, tradesTopic string, cfg Config, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 5 * time.Second
	}
	return &Engine{
		store:    store,
		oracle:   priceSource,
		producer: producer,
		topic:    tradesTopic,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("engine started",
		"tick_interval", e.cfg.TickInterval.String(), "batch_size", e.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return
		case <-ticker.C:
			e.RunTick(ctx)
		}
	}
}

// RunTick performs one pass. If a previous tick is still running it returns
// immediately with a zero report: ticks never overlap.
func (e *Engine) RunTick(ctx context.Context) TickReport {
	if !e.mu.TryLock() {
		e.metrics.ObserveTick("overlapped", 0)
		return TickReport{}
	}
	defer e.mu.Unlock()

	start := time.Now()
	report := e.tick(ctx)
	e.metrics.ObserveTick("completed", time.Since(start))

	if report.Filled > 0 || report.Errors > 0 {
		e.logger.Info("tick finished",
			"scanned", report.Scanned, "filled", report.Filled,
			"skipped", report.Skipped, "errors", report.Errors,
			"duration", time.Since(start).String())
	}
	return report
}

func (e *Engine) tick(ctx context.Context) TickReport {
	var report TickReport

	open, err := e.store.ListOpenOrders(ctx, e.cfg.BatchSize)
	if err != nil {
		e.logger.Error("list open orders failed", "error", err)
		report.Errors++
		return report
	}

	// Reference prices are resolved once per pair per tick; failures are
	// cached for the tick too, so a dead pair costs one oracle call.
	prices := make(map[string]decimal.Decimal)
	failed := make(map[string]bool)

	for _, order := range open {
		report.Scanned++
		if e.metrics != nil {
			e.metrics.OrdersScanned.Inc()
		}

		ref, ok := e.referencePrice(ctx, order.Symbol, prices, failed)
		if !ok {
			report.Skipped++
			continue
		}
		if !shouldFill(order, ref) {
			report.Skipped++
			continue
		}

		if e.settle(ctx, order, &report) {
			report.Filled++
		}
	}
	return report
}

func (e *Engine) referencePrice(ctx context.Context, symbol string, prices map[string]decimal.Decimal, failed map[string]bool) (decimal.Decimal, bool) {
	if price, ok := prices[symbol]; ok {
		return price, true
	}
	if failed[symbol] {
		return decimal.Zero, false
	}

	price, err := e.oracle.ReferencePrice(ctx, symbol)
	if err != nil {
		failed[symbol] = true
		if e.metrics != nil {
			e.metrics.OracleCalls.WithLabelValues("unavailable").Inc()
		}
		if !errors.Is(err, oracle.ErrUnavailable) {
			e.logger.Error("oracle call failed", "symbol", symbol, "error", err)
		}
		return decimal.Zero, false
	}

	if e.metrics != nil {
		e.metrics.OracleCalls.WithLabelValues("success").Inc()
	}
	prices[symbol] = price
	return price, true
}

func (e *Engine) settle(ctx context.Context, order storage.Order, report *TickReport) bool {
	settleCtx, cancel := context.WithTimeout(ctx, e.cfg.SettleTimeout)
	defer cancel()

	plan := orders.BuildSettlementPlan(order, order.Price)
	trade, err := e.store.SettleOrder(settleCtx, plan)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConcurrentTransition):
			// A cancel won the race. Nothing to do.
			report.Skipped++
		case errors.Is(err, storage.ErrInsufficientLocked):
			report.Errors++
			if e.metrics != nil {
				e.metrics.SettlementErrors.WithLabelValues("insufficient_locked").Inc()
			}
			e.logger.Error("locked balance short at settlement, order left open",
				"order_id", order.ID, "user_id", order.UserID,
				"asset", order.LockedAsset, "needed", plan.SpendAmount.String())
		default:
			report.Errors++
			if e.metrics != nil {
				e.metrics.SettlementErrors.WithLabelValues("storage").Inc()
			}
			e.logger.Error("settlement failed", "order_id", order.ID, "error", err)
		}
		return false
	}

	if e.metrics != nil {
		e.metrics.OrdersFilled.Inc()
	}
	e.logger.Info("order filled",
		"order_id", order.ID, "user_id", order.UserID, "symbol", order.Symbol,
		"side", order.Side, "price", order.Price.String(),
		"base_amount", order.BaseAmount.String())

	e.publishTradeSettled(ctx, trade)
	return true
}

// shouldFill reports whether the reference price has reached the order's limit
// price: at or below it for a buy, at or above it for a sell.
func shouldFill(order storage.Order, ref decimal.Decimal) bool {
	switch order.Side {
	case storage.OrderSideBuy:
		return ref.LessThanOrEqual(order.Price)
	case storage.OrderSideSell:
		return ref.GreaterThanOrEqual(order.Price)
	}
	return false
}
