package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/juhanncheong/wallet-backend-sub000/internal/orders"
	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
	"github.com/juhanncheong/wallet-backend-sub000/internal/testutil"
)

type fakeOrders struct {
	order     *storage.Order
	trade     *storage.Trade
	err       error
	lastInput *orders.PlaceOrderRequest
}

func (f *fakeOrders) PlaceLimitOrder(ctx context.Context, userID uuid.UUID, req orders.PlaceOrderRequest) (*storage.Order, error) {
	f.lastInput = &req
	return f.order, f.err
}

func (f *fakeOrders) PlaceMarketOrder(ctx context.Context, userID uuid.UUID, req orders.PlaceOrderRequest) (*storage.Order, *storage.Trade, error) {
	f.lastInput = &req
	return f.order, f.trade, f.err
}

func (f *fakeOrders) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) CancelAll(ctx context.Context, userID uuid.UUID, symbol string) (int, error) {
	return 3, f.err
}

func (f *fakeOrders) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*storage.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) ListOrders(ctx context.Context, userID uuid.UUID, filter storage.OrderFilter) ([]storage.Order, error) {
	if f.order == nil {
		return nil, f.err
	}
	return []storage.Order{*f.order}, f.err
}

func (f *fakeOrders) ListTrades(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]storage.Trade, error) {
	if f.trade == nil {
		return nil, f.err
	}
	return []storage.Trade{*f.trade}, f.err
}

type fakeLedger struct {
	balances []storage.Balance
	err      error
}

func (f *fakeLedger) ListBalances(ctx context.Context, userID uuid.UUID) ([]storage.Balance, error) {
	return f.balances, f.err
}

type fakeAllocator struct {
	addresses []storage.PoolAddress
	err       error
}

func (f *fakeAllocator) Allocate(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error) {
	return f.addresses, f.err
}

func (f *fakeAllocator) ListForUser(ctx context.Context, userID uuid.UUID) ([]storage.PoolAddress, error) {
	return f.addresses, f.err
}

type fakeRewards struct {
	grant *storage.RewardGrant
	err   error
}

func (f *fakeRewards) CreateGrant(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) (*storage.RewardGrant, error) {
	return f.grant, f.err
}

func (f *fakeRewards) Activate(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	return f.grant, f.err
}

func (f *fakeRewards) CancelGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	return f.grant, f.err
}

func (f *fakeRewards) Redeem(ctx context.Context, grantID, userID uuid.UUID) (*storage.RewardGrant, error) {
	return f.grant, f.err
}

func (f *fakeRewards) GetGrant(ctx context.Context, grantID uuid.UUID) (*storage.RewardGrant, error) {
	return f.grant, f.err
}

type fakeOverrides struct {
	override *storage.PriceOverride
	upserted *storage.PriceOverride
	err      error
}

func (f *fakeOverrides) UpsertOverride(ctx context.Context, o storage.PriceOverride) error {
	f.upserted = &o
	return f.err
}

func (f *fakeOverrides) DeactivateOverride(ctx context.Context, symbol string) error {
	return f.err
}

func (f *fakeOverrides) GetOverride(ctx context.Context, symbol string) (*storage.PriceOverride, error) {
	return f.override, f.err
}

const (
	testSecret        = "secret"
	testInternalToken = "internal-token"
)

func newTestRouter(t *testing.T, h *Handler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h.Register(router, []byte(testSecret), testInternalToken)
	return router
}

func userToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := testutil.GenerateJWT(userID, []byte(testSecret), time.Hour, time.Now())
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	return token
}

func demoOrder(userID uuid.UUID) *storage.Order {
	now := time.Now().UTC()
	return &storage.Order{
		ID:           uuid.New(),
		UserID:       userID,
		Symbol:       "BTC-USDT",
		BaseAsset:    "BTC",
		QuoteAsset:   "USDT",
		Side:         storage.OrderSideBuy,
		Type:         storage.OrderTypeLimit,
		Price:        decimal.NewFromInt(30000),
		BaseAmount:   decimal.NewFromInt(1),
		FeeRate:      decimal.NewFromFloat(0.001),
		LockedAsset:  "USDT",
		LockedAmount: decimal.NewFromInt(30000),
		Status:       storage.OrderStatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPlaceOrderUnauthorized(t *testing.T) {
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAPIRequest(router, http.MethodPost, "/orders", map[string]string{"symbol": "BTC-USDT"})
	testutil.AssertErrorCode(t, resp, http.StatusUnauthorized, testutil.ErrorCodeUnauthorized)
}

func TestPlaceLimitOrderCreated(t *testing.T) {
	svc := &fakeOrders{order: demoOrder(testutil.DemoUserID)}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/orders", map[string]string{
		"symbol":      "BTC-USDT",
		"side":        "buy",
		"type":        "limit",
		"price":       "30000",
		"base_amount": "1",
	}, userToken(t, testutil.DemoUserID))

	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var body struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OrderID != svc.order.ID.String() {
		t.Fatalf("expected order id %s, got %s", svc.order.ID, body.OrderID)
	}
	if body.Status != storage.OrderStatusOpen {
		t.Fatalf("expected open status, got %s", body.Status)
	}
	if svc.lastInput == nil || !svc.lastInput.Price.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected parsed price to reach the service")
	}
}

func TestPlaceMarketOrderReturnsTrade(t *testing.T) {
	order := demoOrder(testutil.DemoUserID)
	order.Type = storage.OrderTypeMarket
	order.Status = storage.OrderStatusFilled
	trade := &storage.Trade{
		ID:         uuid.New(),
		OrderID:    order.ID,
		UserID:     order.UserID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Type:       order.Type,
		Price:      order.Price,
		BaseAmount: order.BaseAmount,
		FeeAsset:   "BTC",
		FeeAmount:  decimal.NewFromFloat(0.001),
		ExecutedAt: time.Now().UTC(),
	}
	svc := &fakeOrders{order: order, trade: trade}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/orders", map[string]string{
		"symbol":      "BTC-USDT",
		"side":        "buy",
		"type":        "market",
		"base_amount": "1",
	}, userToken(t, testutil.DemoUserID))

	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var body struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
		Trade struct {
			TradeID string `json:"trade_id"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Order.Status != storage.OrderStatusFilled {
		t.Fatalf("expected filled order, got %s", body.Order.Status)
	}
	if body.Trade.TradeID != trade.ID.String() {
		t.Fatalf("expected trade id %s, got %s", trade.ID, body.Trade.TradeID)
	}
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	svc := &fakeOrders{err: storage.ErrInsufficientFunds}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/orders", map[string]string{
		"symbol":      "BTC-USDT",
		"side":        "buy",
		"type":        "limit",
		"price":       "30000",
		"base_amount": "1",
	}, userToken(t, testutil.DemoUserID))

	testutil.AssertErrorCode(t, resp, http.StatusUnprocessableEntity, testutil.ErrorCodeInsufficientFunds)
}

func TestPlaceMarketOrderOracleUnavailable(t *testing.T) {
	svc := &fakeOrders{err: orders.ErrOracleRequired}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/orders", map[string]string{
		"symbol":      "BTC-USDT",
		"side":        "sell",
		"type":        "market",
		"base_amount": "1",
	}, userToken(t, testutil.DemoUserID))

	testutil.AssertErrorCode(t, resp, http.StatusServiceUnavailable, "ORACLE_UNAVAILABLE")
}

func TestCancelOrderConflictIncludesTerminalOrder(t *testing.T) {
	filled := demoOrder(testutil.DemoUserID)
	filled.Status = storage.OrderStatusFilled
	svc := &fakeOrders{order: filled, err: orders.ErrOrderNotCancellable}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodDelete, "/orders/"+filled.ID.String(), nil, userToken(t, testutil.DemoUserID))

	testutil.AssertHTTPStatus(t, resp, http.StatusConflict)

	var body struct {
		Code  string `json:"code"`
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "ORDER_NOT_CANCELLABLE" {
		t.Fatalf("expected ORDER_NOT_CANCELLABLE, got %s", body.Code)
	}
	if body.Order.Status != storage.OrderStatusFilled {
		t.Fatalf("expected terminal order in body, got %s", body.Order.Status)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	svc := &fakeOrders{err: storage.ErrNotFound}
	h := New(svc, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodDelete, "/orders/"+uuid.NewString(), nil, userToken(t, testutil.DemoUserID))
	testutil.AssertErrorCode(t, resp, http.StatusNotFound, testutil.ErrorCodeOrderNotFound)
}

func TestListBalances(t *testing.T) {
	ledger := &fakeLedger{balances: []storage.Balance{
		{UserID: testutil.DemoUserID, Asset: "USDT", Available: decimal.NewFromInt(1000), Locked: decimal.NewFromInt(50), UpdatedAt: time.Now()},
	}}
	h := New(&fakeOrders{}, ledger, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodGet, "/balances", nil, userToken(t, testutil.DemoUserID))
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var body struct {
		Balances []struct {
			Asset     string `json:"asset"`
			Available string `json:"available"`
			Locked    string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Balances) != 1 || body.Balances[0].Available != "1000" || body.Balances[0].Locked != "50" {
		t.Fatalf("unexpected balances payload: %s", resp.Body.String())
	}
}

func TestAllocateAddressesPoolExhausted(t *testing.T) {
	alloc := &fakeAllocator{err: &storage.PoolExhaustedError{Network: "TRX"}}
	h := New(&fakeOrders{}, &fakeLedger{}, alloc, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/signup-addresses", nil, userToken(t, testutil.DemoUserID))
	testutil.AssertHTTPStatus(t, resp, http.StatusConflict)

	var body struct {
		Code    string `json:"code"`
		Network string `json:"network"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != testutil.ErrorCodePoolExhausted || body.Network != "TRX" {
		t.Fatalf("unexpected exhaustion payload: %s", resp.Body.String())
	}
}

func TestAllocateAddressesCreated(t *testing.T) {
	alloc := &fakeAllocator{addresses: []storage.PoolAddress{
		{Network: "BTC", Address: "bc1qdemo", Status: storage.AddressStatusAssigned},
		{Network: "ETH", Address: "0xdemo", Status: storage.AddressStatusAssigned},
	}}
	h := New(&fakeOrders{}, &fakeLedger{}, alloc, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/signup-addresses", nil, userToken(t, testutil.DemoUserID))
	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var body struct {
		Addresses []addressItem `json:"addresses"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Addresses) != 2 || body.Addresses[0].Network != "BTC" {
		t.Fatalf("unexpected addresses payload: %s", resp.Body.String())
	}
}

func TestInternalRoutesRequireToken(t *testing.T) {
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeInternalRequest(router, http.MethodPost, "/internal/rewards", map[string]string{}, "")
	testutil.AssertErrorCode(t, resp, http.StatusForbidden, testutil.ErrorCodeForbidden)

	resp = testutil.MakeInternalRequest(router, http.MethodPost, "/internal/rewards", map[string]string{}, "wrong")
	testutil.AssertErrorCode(t, resp, http.StatusForbidden, testutil.ErrorCodeForbidden)
}

func TestCreateGrant(t *testing.T) {
	grant := &storage.RewardGrant{
		ID:        uuid.New(),
		UserID:    testutil.DemoUserID,
		Asset:     "USDT",
		Amount:    decimal.NewFromInt(25),
		Status:    storage.GrantStatusDraft,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{grant: grant}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeInternalRequest(router, http.MethodPost, "/internal/rewards", map[string]string{
		"user_id": testutil.DemoUserID.String(),
		"asset":   "USDT",
		"amount":  "25",
	}, testInternalToken)

	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var body grantItem
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.GrantID != grant.ID.String() || body.Status != storage.GrantStatusDraft {
		t.Fatalf("unexpected grant payload: %s", resp.Body.String())
	}
}

func TestRedeemGrantConflict(t *testing.T) {
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{err: storage.ErrConcurrentTransition}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodPost, "/rewards/"+uuid.NewString()+"/redeem", nil, userToken(t, testutil.DemoUserID))
	testutil.AssertErrorCode(t, resp, http.StatusConflict, "INVALID_TRANSITION")
}

func TestGetGrantHidesOtherUsers(t *testing.T) {
	grant := &storage.RewardGrant{
		ID:     uuid.New(),
		UserID: testutil.TraderUserID,
		Asset:  "USDT",
		Amount: decimal.NewFromInt(25),
		Status: storage.GrantStatusActive,
	}
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{grant: grant}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeAuthRequest(router, http.MethodGet, "/rewards/"+grant.ID.String(), nil, userToken(t, testutil.DemoUserID))
	testutil.AssertErrorCode(t, resp, http.StatusNotFound, "GRANT_NOT_FOUND")
}

func TestPutOverride(t *testing.T) {
	overrides := &fakeOverrides{}
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, overrides, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeInternalRequest(router, http.MethodPut, "/internal/overrides/btc-usdt", map[string]any{
		"active":             true,
		"expires_at":         time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"last_price":         "30000",
		"step_size":          "25",
		"flip_probability":   0.1,
		"reversion_target":   "31000",
		"reversion_strength": 0.05,
		"shock_probability":  0.01,
		"shock_multiplier":   "1.2",
	}, testInternalToken)

	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	if overrides.upserted == nil {
		t.Fatalf("expected upsert to be called")
	}
	if overrides.upserted.Symbol != "BTC-USDT" {
		t.Fatalf("expected symbol normalized to upper, got %s", overrides.upserted.Symbol)
	}
	if !overrides.upserted.StepSize.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("unexpected step size %s", overrides.upserted.StepSize)
	}
}

func TestPutOverrideRejectsBadPrice(t *testing.T) {
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeInternalRequest(router, http.MethodPut, "/internal/overrides/BTC-USDT", map[string]any{
		"active":     true,
		"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"last_price": "-5",
	}, testInternalToken)

	testutil.AssertErrorCode(t, resp, http.StatusBadRequest, testutil.ErrorCodeInvalidRequest)
}

func TestGetOverrideNotFound(t *testing.T) {
	h := New(&fakeOrders{}, &fakeLedger{}, &fakeAllocator{}, &fakeRewards{}, &fakeOverrides{err: storage.ErrNotFound}, nil)
	router := newTestRouter(t, h)

	resp := testutil.MakeInternalRequest(router, http.MethodGet, "/internal/overrides/BTC-USDT", nil, testInternalToken)
	testutil.AssertErrorCode(t, resp, http.StatusNotFound, "OVERRIDE_NOT_FOUND")
}
