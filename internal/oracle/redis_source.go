package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultTickerPrefix = "ticker:"

// RedisSource reads the last ticker written by the external market-data feed.
// Each pair lives in a hash keyed ticker:<SYMBOL> with fields `price` and
// `ts` (unix milliseconds). Entries older than maxAge are rejected.
type RedisSource struct {
	client *redis.Client
	maxAge time.Duration
	prefix string
}

func NewRedisSource(client *redis.Client, maxAge time.Duration, prefix string) *RedisSource {
	if prefix == "" {
		prefix = defaultTickerPrefix
	}
	return &RedisSource{
		client: client,
		maxAge: maxAge,
		prefix: prefix,
	}
}

func (s *RedisSource) ReferencePrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	key := s.prefix + strings.ToUpper(strings.TrimSpace(symbol))

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("read ticker %s: %w", key, err)
	}
	if len(fields) == 0 {
		return decimal.Zero, ErrUnavailable
	}

	tsMS, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker timestamp %s: %w", key, err)
	}
	age := time.Since(time.UnixMilli(tsMS))
	if age > s.maxAge {
		return decimal.Zero, ErrUnavailable
	}

	price, err := decimal.NewFromString(fields["price"])
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker price %s: %w", key, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrUnavailable
	}
	return price, nil
}
