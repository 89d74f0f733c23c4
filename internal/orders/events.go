package orders

import (
	"context"
	"time"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

type OrderAcceptedEvent struct {
	kafka.Envelope
	OrderID      string `json:"order_id"`
	UserID       string `json:"user_id"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Price        string `json:"price"`
	BaseAmount   string `json:"base_amount"`
	LockedAsset  string `json:"locked_asset"`
	LockedAmount string `json:"locked_amount"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

type OrderCancelledEvent struct {
	kafka.Envelope
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

func (s *Service) publishOrderAccepted(ctx context.Context, order *storage.Order) {
	if s.producer == nil || order == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.accepted", order.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.accepted", 1, "")
	if err != nil {
		s.logger.Error("build order accepted envelope failed", "error", err)
		return
	}

	payload := OrderAcceptedEvent{
		Envelope:     env,
		OrderID:      order.ID.String(),
		UserID:       order.UserID.String(),
		Symbol:       order.Symbol,
		Side:         order.Side,
		Type:         order.Type,
		Price:        order.Price.String(),
		BaseAmount:   order.BaseAmount.String(),
		LockedAsset:  order.LockedAsset,
		LockedAmount: order.LockedAmount.String(),
		Status:       order.Status,
		CreatedAt:    order.CreatedAt.UTC().Format(time.RFC3339),
	}

	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersAccepted, order.Symbol, payload); err != nil {
		s.logger.Error("publish order accepted failed", "error", err)
		s.observePublishFailure(s.topics.OrdersAccepted)
	}
}

func (s *Service) publishOrderCancelled(ctx context.Context, order *storage.Order) {
	if s.producer == nil || order == nil {
		return
	}
	eventID := kafka.DeterministicEventID("orders.cancelled", order.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "orders.cancelled", 1, "")
	if err != nil {
		s.logger.Error("build order cancelled envelope failed", "error", err)
		return
	}

	payload := OrderCancelledEvent{
		Envelope:    env,
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		Symbol:      order.Symbol,
		Status:      order.Status,
		CancelledAt: order.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if _, _, err := s.producer.PublishJSON(ctx, s.topics.OrdersCancelled, order.Symbol, payload); err != nil {
		s.logger.Error("publish order cancelled failed", "error", err)
		s.observePublishFailure(s.topics.OrdersCancelled)
	}
}

func (s *Service) observePublishFailure(topic string) {
	if s.metrics != nil {
		s.metrics.PublishFailures.WithLabelValues(topic).Inc()
	}
}
