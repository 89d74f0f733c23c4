package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("WALLET_TEST_DB") == "" {
		t.Skip("set WALLET_TEST_DB=1 to run")
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		getenv("POSTGRES_USER", "wallet"),
		getenv("POSTGRES_PASSWORD", "wallet"),
		getenv("POSTGRES_HOST", "localhost"),
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_DB", "wallet_core"),
		getenv("POSTGRES_SSLMODE", "disable"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("db connection failed: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("db ping failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fundUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, asset, available string) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO balances (user_id, asset, available, locked)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id, asset) DO UPDATE
		SET available = EXCLUDED.available, locked = 0
	`, userID, asset, available)
	if err != nil {
		t.Fatalf("fund user: %v", err)
	}
}

func newTestOrder(userID uuid.UUID) Order {
	return Order{
		ID:           uuid.New(),
		UserID:       userID,
		Symbol:       "BTC-USDT",
		BaseAsset:    "BTC",
		QuoteAsset:   "USDT",
		Side:         OrderSideBuy,
		Type:         OrderTypeLimit,
		Price:        decimal.NewFromInt(30000),
		BaseAmount:   decimal.NewFromInt(1),
		FeeRate:      decimal.NewFromFloat(0.001),
		LockedAsset:  "USDT",
		LockedAmount: decimal.NewFromInt(30000),
	}
}

func TestCreateOrderWithLockMovesFunds(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()
	fundUser(t, ctx, pool, userID, "USDT", "50000")

	stored, err := store.CreateOrderWithLock(ctx, newTestOrder(userID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if stored.Status != OrderStatusOpen {
		t.Fatalf("expected open order, got %s", stored.Status)
	}

	balance, err := store.GetBalance(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Available.String() != "20000" || balance.Locked.String() != "30000" {
		t.Fatalf("expected 20000/30000 after lock, got %s/%s", balance.Available, balance.Locked)
	}
}

func TestCreateOrderWithLockInsufficientFundsLeavesNoOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()
	fundUser(t, ctx, pool, userID, "USDT", "100")

	order := newTestOrder(userID)
	if _, err := store.CreateOrderWithLock(ctx, order); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := store.GetOrder(ctx, order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no order row, got %v", err)
	}

	balance, err := store.GetBalance(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Available.String() != "100" || !balance.Locked.IsZero() {
		t.Fatalf("expected funds untouched, got %s/%s", balance.Available, balance.Locked)
	}
}

func TestCancelAfterSettleLosesRace(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()
	fundUser(t, ctx, pool, userID, "USDT", "30000")

	stored, err := store.CreateOrderWithLock(ctx, newTestOrder(userID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	plan := SettlementPlan{
		OrderID:      stored.ID,
		UserID:       userID,
		Symbol:       stored.Symbol,
		Side:         stored.Side,
		Type:         stored.Type,
		Price:        stored.Price,
		BaseAmount:   stored.BaseAmount,
		SpendAsset:   "USDT",
		SpendAmount:  decimal.NewFromInt(30000),
		CreditAsset:  "BTC",
		CreditAmount: decimal.RequireFromString("0.999"),
		FeeAsset:     "BTC",
		FeeAmount:    decimal.RequireFromString("0.001"),
		GrossBase:    decimal.NewFromInt(1),
		NetBase:      decimal.RequireFromString("0.999"),
		GrossQuote:   decimal.NewFromInt(30000),
		NetQuote:     decimal.NewFromInt(30000),
	}
	if _, err := store.SettleOrder(ctx, plan); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if _, err := store.CancelOrder(ctx, stored.ID, userID); !errors.Is(err, ErrConcurrentTransition) {
		t.Fatalf("expected ErrConcurrentTransition after fill, got %v", err)
	}

	btc, err := store.GetBalance(ctx, userID, "BTC")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if btc.Available.String() != "0.999" {
		t.Fatalf("expected settled BTC credit 0.999, got %s", btc.Available)
	}
	usdt, err := store.GetBalance(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !usdt.Available.IsZero() || !usdt.Locked.IsZero() {
		t.Fatalf("expected USDT fully spent, got %s/%s", usdt.Available, usdt.Locked)
	}
}

func TestCancelUnlocksFunds(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()
	fundUser(t, ctx, pool, userID, "USDT", "30000")

	stored, err := store.CreateOrderWithLock(ctx, newTestOrder(userID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cancelled, err := store.CancelOrder(ctx, stored.ID, userID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	balance, err := store.GetBalance(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Available.String() != "30000" || !balance.Locked.IsZero() {
		t.Fatalf("expected full unlock, got %s/%s", balance.Available, balance.Locked)
	}
}

func TestAllocateAddressesOldestFirstAndExhaustion(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)

	network := fmt.Sprintf("NET%d", time.Now().UnixNano()%100000)
	first := fmt.Sprintf("addr-%s-0", network)
	second := fmt.Sprintf("addr-%s-1", network)
	if err := store.InsertPoolAddress(ctx, network, first); err != nil {
		t.Fatalf("insert address: %v", err)
	}
	if err := store.InsertPoolAddress(ctx, network, second); err != nil {
		t.Fatalf("insert address: %v", err)
	}

	got, err := store.AllocateAddresses(ctx, uuid.New(), []string{network})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(got) != 1 || got[0].Address != first {
		t.Fatalf("expected oldest address %s, got %+v", first, got)
	}

	if _, err := store.AllocateAddresses(ctx, uuid.New(), []string{network}); err != nil {
		t.Fatalf("allocate second: %v", err)
	}

	_, err = store.AllocateAddresses(ctx, uuid.New(), []string{network})
	var exhausted *PoolExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Network != network {
		t.Fatalf("expected PoolExhaustedError for %s, got %v", network, err)
	}
}

func TestRedeemGrantExactlyOnce(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()

	grant, err := store.CreateGrant(ctx, RewardGrant{
		ID:     uuid.New(),
		UserID: userID,
		Asset:  "USDT",
		Amount: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("create grant: %v", err)
	}
	if _, err := store.TransitionGrant(ctx, grant.ID, GrantStatusDraft, GrantStatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := store.RedeemGrant(ctx, grant.ID, userID); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := store.RedeemGrant(ctx, grant.ID, userID); !errors.Is(err, ErrConcurrentTransition) {
		t.Fatalf("expected second redeem to lose, got %v", err)
	}

	balance, err := store.GetBalance(ctx, userID, "USDT")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Available.String() != "25" {
		t.Fatalf("expected one credit of 25, got %s", balance.Available)
	}
}

func TestCreditWithEventIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := New(pool, nil)
	userID := uuid.New()
	eventID := fmt.Sprintf("dep-%s", uuid.NewString())

	applied, err := store.CreditWithEvent(ctx, eventID, userID, "ETH", decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !applied {
		t.Fatalf("expected first credit applied")
	}

	applied, err = store.CreditWithEvent(ctx, eventID, userID, "ETH", decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("duplicate credit: %v", err)
	}
	if applied {
		t.Fatalf("expected duplicate credit skipped")
	}

	balance, err := store.GetBalance(ctx, userID, "ETH")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Available.String() != "2" {
		t.Fatalf("expected single credit of 2, got %s", balance.Available)
	}
}
