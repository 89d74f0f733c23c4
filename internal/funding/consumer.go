package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/ledger"
	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

const (
	depositConfirmedEventType  = "funding.deposits.confirmed"
	withdrawalDecidedEventType = "funding.withdrawals.decided"

	withdrawalApproved = "approved"
	withdrawalRejected = "rejected"
)

type DepositConfirmedEvent struct {
	kafka.Envelope
	DepositID string `json:"deposit_id"`
	UserID    string `json:"user_id"`
	Network   string `json:"network"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	TxHash    string `json:"tx_hash"`
}

type WithdrawalDecidedEvent struct {
	kafka.Envelope
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
}

type Ledger interface {
	CreditOnce(ctx context.Context, eventID string, userID uuid.UUID, asset string, amount decimal.Decimal, reason string) (bool, error)
}

// Consumer applies funding outcomes to the ledger. Deposit confirmations
// credit available; rejected withdrawals credit the amount back. Approved
// withdrawals are a no-op here, their debit happened at request time outside
// this service. Event IDs make every handler idempotent.
type Consumer struct {
	ledger Ledger
	logger *slog.Logger
}

func NewConsumer(ledgerSvc Ledger, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ledger: ledgerSvc,
		logger: logger,
	}
}

func (c *Consumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil || len(msg.Value) == 0 {
		return fmt.Errorf("empty kafka message")
	}

	switch msg.Topic {
	case depositConfirmedEventType:
		return c.handleDeposit(ctx, msg.Value)
	case withdrawalDecidedEventType:
		return c.handleWithdrawal(ctx, msg.Value)
	default:
		return fmt.Errorf("unexpected topic: %s", msg.Topic)
	}
}

func (c *Consumer) handleDeposit(ctx context.Context, value []byte) error {
	var event DepositConfirmedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode %s: %w", depositConfirmedEventType, err)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	userID, err := parseUUID(event.UserID, "user_id")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(event.Amount))
	if err != nil {
		return fmt.Errorf("amount must be decimal")
	}

	applied, err := c.ledger.CreditOnce(ctx, event.EventID, userID, event.Asset, amount, ledger.ReasonDeposit)
	if err != nil {
		return fmt.Errorf("apply deposit %s: %w", event.DepositID, err)
	}
	if !applied {
		c.logger.Info("deposit event already processed",
			"event_id", event.EventID, "deposit_id", event.DepositID)
	}
	return nil
}

func (c *Consumer) handleWithdrawal(ctx context.Context, value []byte) error {
	var event WithdrawalDecidedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("decode %s: %w", withdrawalDecidedEventType, err)
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if event.Outcome == withdrawalApproved {
		c.logger.Info("withdrawal approved, no ledger action",
			"withdrawal_id", event.WithdrawalID, "event_id", event.EventID)
		return nil
	}

	userID, err := parseUUID(event.UserID, "user_id")
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(event.Amount))
	if err != nil {
		return fmt.Errorf("amount must be decimal")
	}

	applied, err := c.ledger.CreditOnce(ctx, event.EventID, userID, event.Asset, amount, ledger.ReasonWithdrawalRejected)
	if err != nil {
		return fmt.Errorf("apply withdrawal rejection %s: %w", event.WithdrawalID, err)
	}
	if !applied {
		c.logger.Info("withdrawal event already processed",
			"event_id", event.EventID, "withdrawal_id", event.WithdrawalID)
	}
	return nil
}

func (e *DepositConfirmedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != depositConfirmedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.DepositID) == "" {
		return fmt.Errorf("deposit_id is required")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(e.Asset) == "" {
		return fmt.Errorf("asset is required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(e.Amount))
	if err != nil {
		return fmt.Errorf("amount must be decimal")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

func (e *WithdrawalDecidedEvent) Validate() error {
	if err := e.Envelope.Validate(); err != nil {
		return err
	}
	if e.EventType != withdrawalDecidedEventType {
		return fmt.Errorf("unexpected event_type: %s", e.EventType)
	}
	if strings.TrimSpace(e.WithdrawalID) == "" {
		return fmt.Errorf("withdrawal_id is required")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	outcome := strings.ToLower(strings.TrimSpace(e.Outcome))
	if outcome != withdrawalApproved && outcome != withdrawalRejected {
		return fmt.Errorf("outcome must be approved or rejected")
	}
	if outcome == withdrawalRejected {
		amount, err := decimal.NewFromString(strings.TrimSpace(e.Amount))
		if err != nil {
			return fmt.Errorf("amount must be decimal")
		}
		if !amount.IsPositive() {
			return fmt.Errorf("amount must be positive")
		}
	}
	return nil
}

func parseUUID(value, field string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%s is required", field)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", field)
	}
	return parsed, nil
}
