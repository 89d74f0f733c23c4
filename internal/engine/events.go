package engine

import (
	"context"
	"time"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

type TradeSettledEvent struct {
	kafka.Envelope
	TradeID    string `json:"trade_id"`
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Price      string `json:"price"`
	BaseAmount string `json:"base_amount"`
	FeeAsset   string `json:"fee_asset"`
	FeeAmount  string `json:"fee_amount"`
	ExecutedAt string `json:"executed_at"`
}

func (e *Engine) publishTradeSettled(ctx context.Context, trade *storage.Trade) {
	if e.producer == nil || trade == nil {
		return
	}
	eventID := kafka.DeterministicEventID("trades.settled", trade.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "trades.settled", 1, "")
	if err != nil {
		e.logger.Error("build trade settled envelope failed", "error", err)
		return
	}

	payload := TradeSettledEvent{
		Envelope:   env,
		TradeID:    trade.ID.String(),
		OrderID:    trade.OrderID.String(),
		UserID:     trade.UserID.String(),
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		Price:      trade.Price.String(),
		BaseAmount: trade.BaseAmount.String(),
		FeeAsset:   trade.FeeAsset,
		FeeAmount:  trade.FeeAmount.String(),
		ExecutedAt: trade.ExecutedAt.UTC().Format(time.RFC3339),
	}

	if _, _, err := e.producer.PublishJSON(ctx, e.topic, trade.Symbol, payload); err != nil {
		e.logger.Error("publish trade settled failed", "error", err)
	}
}
