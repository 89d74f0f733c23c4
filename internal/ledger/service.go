package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

// Reasons recorded against every credit.
const (
	ReasonDeposit            = "deposit"
	ReasonWithdrawalRejected = "withdrawal_rejected"
	ReasonReward             = "reward"
)

type Store interface {
	GetBalance(ctx context.Context, userID uuid.UUID, asset string) (storage.Balance, error)
	ListBalances(ctx context.Context, userID uuid.UUID) ([]storage.Balance, error)
	Credit(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) error
	CreditWithEvent(ctx context.Context, eventID string, userID uuid.UUID, asset string, amount decimal.Decimal) (bool, error)
	ListLockDiscrepancies(ctx context.Context) ([]storage.LockDiscrepancy, error)
}

type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
}

func NewService(store Store, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, asset string) (storage.Balance, error) {
	balance, err := s.store.GetBalance(ctx, userID, asset)
	if err != nil {
		s.observeLookup("error")
		return storage.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	s.observeLookup("success")
	return balance, nil
}

func (s *Service) ListBalances(ctx context.Context, userID uuid.UUID) ([]storage.Balance, error) {
	balances, err := s.store.ListBalances(ctx, userID)
	if err != nil {
		s.observeLookup("error")
		return nil, fmt.Errorf("list balances: %w", err)
	}
	s.observeLookup("success")
	return balances, nil
}

// Credit applies a plain credit with the given reason.
func (s *Service) Credit(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal, reason string) error {
	if err := s.store.Credit(ctx, userID, asset, amount); err != nil {
		s.observeCredit(reason, "error")
		return fmt.Errorf("credit %s: %w", reason, err)
	}
	s.observeCredit(reason, "applied")
	s.logger.Info("credit applied",
		"user_id", userID, "asset", asset, "amount", amount.String(), "reason", reason)
	return nil
}

// CreditOnce applies a credit at most once per event ID. A false return with a
// nil error means the event was already processed and nothing moved.
func (s *Service) CreditOnce(ctx context.Context, eventID string, userID uuid.UUID, asset string, amount decimal.Decimal, reason string) (bool, error) {
	applied, err := s.store.CreditWithEvent(ctx, eventID, userID, asset, amount)
	if err != nil {
		s.observeCredit(reason, "error")
		return false, fmt.Errorf("credit %s: %w", reason, err)
	}
	if !applied {
		s.observeCredit(reason, "duplicate")
		s.logger.Info("credit skipped, event already processed",
			"event_id", eventID, "user_id", userID, "reason", reason)
		return false, nil
	}
	s.observeCredit(reason, "applied")
	s.logger.Info("credit applied",
		"event_id", eventID, "user_id", userID, "asset", asset,
		"amount", amount.String(), "reason", reason)
	return true, nil
}

// ReconcileLocks compares locked balances against the sum of open-order locks
// per (user, asset) and reports every mismatch. It never unlocks anything: a
// mismatch means an operator has to look, not that funds should move.
func (s *Service) ReconcileLocks(ctx context.Context) ([]storage.LockDiscrepancy, error) {
	discrepancies, err := s.store.ListLockDiscrepancies(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile locks: %w", err)
	}
	for _, d := range discrepancies {
		s.logger.Warn("lock discrepancy",
			"user_id", d.UserID, "asset", d.Asset,
			"locked", d.Locked.String(), "order_locks", d.OrderLocks.String())
	}
	if s.metrics != nil {
		s.metrics.LockDiscrepancies.Set(float64(len(discrepancies)))
	}
	return discrepancies, nil
}

func (s *Service) observeLookup(status string) {
	if s.metrics != nil {
		s.metrics.BalanceLookups.WithLabelValues(status).Inc()
	}
}

func (s *Service) observeCredit(reason, status string) {
	if s.metrics != nil {
		s.metrics.CreditsTotal.WithLabelValues(reason, status).Inc()
	}
}
