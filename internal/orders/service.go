package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/juhanncheong/wallet-backend-sub000/internal/oracle"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

type Store interface {
	CreateOrderWithLock(ctx context.Context, order storage.Order) (*storage.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*storage.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, filter storage.OrderFilter) ([]storage.Order, error)
	ListOpenOrdersByUser(ctx context.Context, userID uuid.UUID, symbol string) ([]storage.Order, error)
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*storage.Order, error)
	SettleMarketOrder(ctx context.Context, order storage.Order, plan storage.SettlementPlan) (*storage.Order, *storage.Trade, error)
	ListTrades(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]storage.Trade, error)
}

type MarketLookup interface {
	Get(symbol string) (*storage.Market, bool)
}

type Topics struct {
	OrdersAccepted  string
	OrdersCancelled string
}

type Service struct {
	store           Store
	markets         MarketLookup
	oracle          oracle.Source
	producer        kafka.Publisher
	topics          Topics
	settlementAsset string
	logger          *slog.Logger
	metrics         *Metrics
}

func NewService(store Store, markets MarketLookup, priceSource oracle.Source, producer kafka.Publisher, topics Topics, settlementAsset string, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:           store,
		markets:         markets,
		oracle:          priceSource,
		producer:        producer,
		topics:          topics,
		settlementAsset: settlementAsset,
		logger:          logger,
		metrics:         metrics,
	}
}

// PlaceLimitOrder validates the request, locks the funds, and records the open
// order, all in one storage transaction. A buy locks price*amount of the quote
// asset, a sell locks the base amount.
func (s *Service) PlaceLimitOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*storage.Order, error) {
	req.normalize()
	req.Type = storage.OrderTypeLimit

	market, _ := s.markets.Get(req.Symbol)
	if err := req.validate(market, s.settlementAsset); err != nil {
		s.observeRejection(err)
		return nil, err
	}

	order := storage.Order{
		ID:         uuid.New(),
		UserID:     userID,
		Symbol:     market.Symbol,
		BaseAsset:  market.BaseAsset,
		QuoteAsset: market.QuoteAsset,
		Side:       req.Side,
		Type:       storage.OrderTypeLimit,
		Price:      req.Price,
		BaseAmount: req.BaseAmount,
		FeeRate:    market.FeeRate,
	}
	if req.Side == storage.OrderSideBuy {
		order.LockedAsset = market.QuoteAsset
		order.LockedAmount = req.Price.Mul(req.BaseAmount)
	} else {
		order.LockedAsset = market.BaseAsset
		order.LockedAmount = req.BaseAmount
	}

	stored, err := s.store.CreateOrderWithLock(ctx, order)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			s.observeRejection(err)
			return nil, err
		}
		return nil, fmt.Errorf("place limit order: %w", err)
	}

	s.observePlaced(stored)
	s.logger.Info("order placed",
		"order_id", stored.ID, "user_id", userID, "symbol", stored.Symbol,
		"side", stored.Side, "price", stored.Price.String(),
		"base_amount", stored.BaseAmount.String(),
		"locked", stored.LockedAmount.String(), "locked_asset", stored.LockedAsset)

	s.publishOrderAccepted(ctx, stored)
	return stored, nil
}

// PlaceMarketOrder quotes the trade at the oracle's reference price and
// settles immediately: the spend comes out of available, the net proceeds are
// credited, and the order is recorded already filled. Without a reference
// price the order is rejected, there is nothing to quote it against.
func (s *Service) PlaceMarketOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*storage.Order, *storage.Trade, error) {
	req.normalize()
	req.Type = storage.OrderTypeMarket

	market, _ := s.markets.Get(req.Symbol)
	if err := req.validate(market, s.settlementAsset); err != nil {
		s.observeRejection(err)
		return nil, nil, err
	}

	price, err := s.oracle.ReferencePrice(ctx, market.Symbol)
	if err != nil {
		s.observeRejection(ErrOracleRequired)
		return nil, nil, fmt.Errorf("%w: %s", ErrOracleRequired, market.Symbol)
	}

	order := storage.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Symbol:      market.Symbol,
		BaseAsset:   market.BaseAsset,
		QuoteAsset:  market.QuoteAsset,
		Side:        req.Side,
		Type:        storage.OrderTypeMarket,
		Price:       price,
		BaseAmount:  req.BaseAmount,
		FeeRate:     market.FeeRate,
		LockedAsset: market.QuoteAsset,
	}
	if req.Side == storage.OrderSideSell {
		order.LockedAsset = market.BaseAsset
	}

	plan := BuildSettlementPlan(order, price)
	stored, trade, err := s.store.SettleMarketOrder(ctx, order, plan)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			s.observeRejection(err)
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("settle market order: %w", err)
	}

	s.observePlaced(stored)
	s.logger.Info("market order settled",
		"order_id", stored.ID, "user_id", userID, "symbol", stored.Symbol,
		"side", stored.Side, "price", price.String(),
		"base_amount", stored.BaseAmount.String())

	s.publishOrderAccepted(ctx, stored)
	return stored, trade, nil
}

// Cancel flips the order to cancelled and releases its lock. If a concurrent
// fill or duplicate cancel got there first, the order's terminal state comes
// back with ErrOrderNotCancellable so callers can report what actually
// happened to it.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error) {
	order, err := s.store.CancelOrder(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrConcurrentTransition) {
			s.observeCancel("lost_race")
			return order, ErrOrderNotCancellable
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	s.observeCancel("cancelled")
	s.logger.Info("order cancelled",
		"order_id", order.ID, "user_id", userID,
		"unlocked", order.LockedAmount.String(), "asset", order.LockedAsset)

	s.publishOrderCancelled(ctx, order)
	return order, nil
}

// CancelAll cancels every open order for the user, optionally restricted to
// one symbol. Orders filled mid-sweep are skipped, not errors.
func (s *Service) CancelAll(ctx context.Context, userID uuid.UUID, symbol string) (int, error) {
	open, err := s.store.ListOpenOrdersByUser(ctx, userID, symbol)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}

	cancelled := 0
	for _, order := range open {
		if _, err := s.Cancel(ctx, userID, order.ID); err != nil {
			if errors.Is(err, ErrOrderNotCancellable) || errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, filter storage.OrderFilter) ([]storage.Order, error) {
	return s.store.ListOrders(ctx, userID, filter)
}

func (s *Service) ListTrades(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]storage.Trade, error) {
	return s.store.ListTrades(ctx, userID, symbol, limit)
}

func (s *Service) observePlaced(order *storage.Order) {
	if s.metrics != nil {
		s.metrics.OrdersPlaced.WithLabelValues(order.Side, order.Type).Inc()
	}
}

func (s *Service) observeCancel(outcome string) {
	if s.metrics != nil {
		s.metrics.OrdersCancelled.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeRejection(err error) {
	if s.metrics == nil {
		return
	}
	reason := "invalid"
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		reason = "insufficient_funds"
	case errors.Is(err, ErrUnknownMarket):
		reason = "unknown_market"
	case errors.Is(err, ErrMarketHalted):
		reason = "market_halted"
	case errors.Is(err, ErrOracleRequired):
		reason = "oracle_unavailable"
	}
	s.metrics.OrderRejections.WithLabelValues(reason).Inc()
}
