package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

var (
	ErrUnknownMarket       = errors.New("unknown market")
	ErrMarketHalted        = errors.New("market halted")
	ErrInvalidSide         = errors.New("side must be buy or sell")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrWrongQuoteAsset     = errors.New("market does not settle in the configured asset")
	ErrOracleRequired      = errors.New("no reference price available to quote the trade")
	ErrOrderNotCancellable = errors.New("order already reached a terminal status")
)

type PlaceOrderRequest struct {
	Symbol     string
	Side       string
	Type       string
	Price      decimal.Decimal
	BaseAmount decimal.Decimal
}

func (r *PlaceOrderRequest) normalize() {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Side = strings.ToLower(strings.TrimSpace(r.Side))
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.Type == "" {
		r.Type = storage.OrderTypeLimit
	}
}

func (r PlaceOrderRequest) validate(market *storage.Market, settlementAsset string) error {
	if market == nil {
		return ErrUnknownMarket
	}
	if market.Status != storage.MarketStatusActive {
		return ErrMarketHalted
	}
	if market.QuoteAsset != settlementAsset {
		return fmt.Errorf("%w: %s settles in %s", ErrWrongQuoteAsset, market.Symbol, market.QuoteAsset)
	}
	if r.Side != storage.OrderSideBuy && r.Side != storage.OrderSideSell {
		return ErrInvalidSide
	}
	if !r.BaseAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if r.Type == storage.OrderTypeLimit && !r.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}
