package oracle

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func writeTicker(t *testing.T, s *miniredis.Miniredis, symbol, price string, ts time.Time) {
	t.Helper()
	s.HSet("ticker:"+symbol, "price", price)
	s.HSet("ticker:"+symbol, "ts", strconv.FormatInt(ts.UnixMilli(), 10))
}

func TestRedisSourceFreshTicker(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	writeTicker(t, s, "BTC-USDT", "65000.25", time.Now())

	source := NewRedisSource(client, 30*time.Second, "")
	price, err := source.ReferencePrice(context.Background(), "btc-usdt")
	if err != nil {
		t.Fatalf("reference price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("65000.25")) {
		t.Fatalf("expected 65000.25, got %s", price)
	}
}

func TestRedisSourceStaleTicker(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	writeTicker(t, s, "BTC-USDT", "65000", time.Now().Add(-time.Minute))

	source := NewRedisSource(client, 30*time.Second, "")
	if _, err := source.ReferencePrice(context.Background(), "BTC-USDT"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRedisSourceMissingTicker(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	source := NewRedisSource(client, 30*time.Second, "")
	if _, err := source.ReferencePrice(context.Background(), "ETH-USDT"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
