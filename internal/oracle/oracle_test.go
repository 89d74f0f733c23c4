package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeSource struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeSource) ReferencePrice(_ context.Context, _ string) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

func TestOracleOverridePrecedence(t *testing.T) {
	override := activeOverride("BTC-USDT")
	overrideSource := NewOverrideSource(&fakeOverrideStore{override: override}, 1, nil)
	market := &fakeSource{price: decimal.RequireFromString("999")}

	oracle := New(overrideSource, market, time.Second, nil)
	price, err := oracle.ReferencePrice(context.Background(), "BTC-USDT")
	if err != nil {
		t.Fatalf("reference price: %v", err)
	}
	if price.Equal(market.price) {
		t.Fatal("active override must shadow the market source")
	}
	if market.calls != 0 {
		t.Fatalf("market source called %d times under an active override", market.calls)
	}
}

func TestOracleFallsBackToMarket(t *testing.T) {
	overrideSource := NewOverrideSource(&fakeOverrideStore{}, 1, nil)
	market := &fakeSource{price: decimal.RequireFromString("65000")}

	oracle := New(overrideSource, market, time.Second, nil)
	price, err := oracle.ReferencePrice(context.Background(), "BTC-USDT")
	if err != nil {
		t.Fatalf("reference price: %v", err)
	}
	if !price.Equal(market.price) {
		t.Fatalf("expected market price, got %s", price)
	}
}

func TestOracleMapsFailuresToUnavailable(t *testing.T) {
	overrideSource := NewOverrideSource(&fakeOverrideStore{}, 1, nil)
	market := &fakeSource{err: errors.New("feed down")}

	oracle := New(overrideSource, market, time.Second, nil)
	if _, err := oracle.ReferencePrice(context.Background(), "BTC-USDT"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
