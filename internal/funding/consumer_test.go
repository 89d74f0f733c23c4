package funding

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/libs/kafka"
)

type creditCall struct {
	eventID string
	userID  uuid.UUID
	asset   string
	amount  decimal.Decimal
	reason  string
}

type fakeLedger struct {
	processed map[string]bool
	calls     []creditCall
	err       error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: make(map[string]bool)}
}

func (f *fakeLedger) CreditOnce(_ context.Context, eventID string, userID uuid.UUID, asset string, amount decimal.Decimal, reason string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.processed[eventID] {
		return false, nil
	}
	f.processed[eventID] = true
	f.calls = append(f.calls, creditCall{eventID, userID, asset, amount, reason})
	return true, nil
}

func depositMessage(t *testing.T, eventID, userID, amount string) *sarama.ConsumerMessage {
	t.Helper()
	env, err := kafka.NewEnvelopeWithID(eventID, depositConfirmedEventType, 1, "")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	payload := DepositConfirmedEvent{
		Envelope:  env,
		DepositID: uuid.NewString(),
		UserID:    userID,
		Network:   "ETH",
		Asset:     "USDT",
		Amount:    amount,
		TxHash:    "0xabc",
	}
	value, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: depositConfirmedEventType, Value: value}
}

func withdrawalMessage(t *testing.T, eventID, userID, amount, outcome string) *sarama.ConsumerMessage {
	t.Helper()
	env, err := kafka.NewEnvelopeWithID(eventID, withdrawalDecidedEventType, 1, "")
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	payload := WithdrawalDecidedEvent{
		Envelope:     env,
		WithdrawalID: uuid.NewString(),
		UserID:       userID,
		Asset:        "BTC",
		Amount:       amount,
		Outcome:      outcome,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: withdrawalDecidedEventType, Value: value}
}

func TestDepositCreditsOnce(t *testing.T) {
	fake := newFakeLedger()
	consumer := NewConsumer(fake, nil)
	userID := uuid.New()
	msg := depositMessage(t, "evt-dep-1", userID.String(), "150.25")

	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("duplicate handle: %v", err)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 credit, got %d", len(fake.calls))
	}
	call := fake.calls[0]
	if call.reason != "deposit" || call.asset != "USDT" || !call.amount.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("unexpected credit call %+v", call)
	}
}

func TestWithdrawalRejectedCreditsBack(t *testing.T) {
	fake := newFakeLedger()
	consumer := NewConsumer(fake, nil)
	userID := uuid.New()

	msg := withdrawalMessage(t, "evt-wd-1", userID.String(), "0.5", "rejected")
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0].reason != "withdrawal_rejected" {
		t.Fatalf("expected withdrawal_rejected credit, got %+v", fake.calls)
	}
}

func TestWithdrawalApprovedNoCredit(t *testing.T) {
	fake := newFakeLedger()
	consumer := NewConsumer(fake, nil)

	msg := withdrawalMessage(t, "evt-wd-2", uuid.NewString(), "0.5", "approved")
	if err := consumer.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatal("approved withdrawal must not touch the ledger")
	}
}

func TestMalformedEventRejected(t *testing.T) {
	fake := newFakeLedger()
	consumer := NewConsumer(fake, nil)

	msg := depositMessage(t, "evt-dep-2", uuid.NewString(), "-5")
	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected validation error for negative amount")
	}
	if len(fake.calls) != 0 {
		t.Fatal("invalid event must not credit")
	}
}

func TestUnexpectedTopicRejected(t *testing.T) {
	consumer := NewConsumer(newFakeLedger(), nil)
	msg := &sarama.ConsumerMessage{Topic: "unknown.topic", Value: []byte("{}")}
	if err := consumer.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown topic")
	}
}
