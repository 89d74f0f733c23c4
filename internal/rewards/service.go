package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

var ErrInvalidGrant = errors.New("invalid grant")

type Store interface {
	CreateGrant(ctx context.Context, grant storage.RewardGrant) (*storage.RewardGrant, error)
	GetGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error)
	ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]storage.RewardGrant, error)
	TransitionGrant(ctx context.Context, grantID uuid.UUID, from, to string) (*storage.RewardGrant, error)
	RedeemGrant(ctx context.Context, grantID, userID uuid.UUID) (*storage.RewardGrant, error)
}

type Metrics struct {
	Transitions *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reward_grant_transitions_total",
				Help: "Total reward grant status transitions.",
			},
			[]string{"to", "status"},
		),
	}
	registry.MustRegister(m.Transitions)
	return m
}

// Service drives the grant state machine: draft → active → redeemed, with
// cancellation allowed from either non-terminal status. Redeeming credits the
// user exactly once.
type Service struct {
	store    Store
	producer kafka.Publisher
	topic    string
	logger   *slog.Logger
	metrics  *Metrics
}

func NewService(store Store, producer kafka.Publisher, redeemedTopic string, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		producer: producer,
		topic:    redeemedTopic,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *Service) CreateGrant(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) (*storage.RewardGrant, error) {
	if asset == "" || !amount.IsPositive() {
		return nil, ErrInvalidGrant
	}
	grant, err := s.store.CreateGrant(ctx, storage.RewardGrant{
		ID:     uuid.New(),
		UserID: userID,
		Asset:  asset,
		Amount: amount,
	})
	if err != nil {
		return nil, fmt.Errorf("create grant: %w", err)
	}
	s.logger.Info("grant created",
		"grant_id", grant.ID, "user_id", userID, "asset", asset, "amount", amount.String())
	return grant, nil
}

func (s *Service) Activate(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	grant, err := s.store.TransitionGrant(ctx, grantID, storage.GrantStatusDraft, storage.GrantStatusActive)
	s.observe(storage.GrantStatusActive, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grant activated", "grant_id", grant.ID)
	return grant, nil
}

// CancelGrant cancels a draft or active grant. Redeemed grants stay redeemed.
func (s *Service) CancelGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	grant, err := s.store.TransitionGrant(ctx, grantID, storage.GrantStatusDraft, storage.GrantStatusCancelled)
	if errors.Is(err, storage.ErrConcurrentTransition) {
		grant, err = s.store.TransitionGrant(ctx, grantID, storage.GrantStatusActive, storage.GrantStatusCancelled)
	}
	s.observe(storage.GrantStatusCancelled, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grant cancelled", "grant_id", grant.ID)
	return grant, nil
}

// Redeem credits the grant amount to the user. The conditional active→redeemed
// flip and the credit share a transaction, so concurrent redeem attempts pay
// out exactly once; losers get ErrConcurrentTransition.
func (s *Service) Redeem(ctx context.Context, grantID, userID uuid.UUID) (*storage.RewardGrant, error) {
	grant, err := s.store.RedeemGrant(ctx, grantID, userID)
	s.observe(storage.GrantStatusRedeemed, err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grant redeemed",
		"grant_id", grant.ID, "user_id", userID,
		"asset", grant.Asset, "amount", grant.Amount.String())

	s.publishRedeemed(ctx, grant)
	return grant, nil
}

func (s *Service) GetGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	return s.store.GetGrant(ctx, grantID)
}

func (s *Service) ListGrants(ctx context.Context, userID uuid.UUID) ([]storage.RewardGrant, error) {
	return s.store.ListGrantsByUser(ctx, userID)
}

type RewardRedeemedEvent struct {
	kafka.Envelope
	GrantID string `json:"grant_id"`
	UserID  string `json:"user_id"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (s *Service) publishRedeemed(ctx context.Context, grant *storage.RewardGrant) {
	if s.producer == nil || grant == nil {
		return
	}
	eventID := kafka.DeterministicEventID("rewards.redeemed", grant.ID.String())
	env, err := kafka.NewEnvelopeWithID(eventID, "rewards.redeemed", 1, "")
	if err != nil {
		s.logger.Error("build reward redeemed envelope failed", "error", err)
		return
	}

	payload := RewardRedeemedEvent{
		Envelope: env,
		GrantID:  grant.ID.String(),
		UserID:   grant.UserID.String(),
		Asset:    grant.Asset,
		Amount:   grant.Amount.String(),
	}
	if _, _, err := s.producer.PublishJSON(ctx, s.topic, grant.UserID.String(), payload); err != nil {
		s.logger.Error("publish reward redeemed failed", "error", err)
	}
}

func (s *Service) observe(to string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "rejected"
	}
	s.metrics.Transitions.WithLabelValues(to, status).Inc()
}
