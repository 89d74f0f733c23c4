package markets

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/juhanncheong/wallet-backend-sub000/internal/storage"
)

type Store interface {
	ListActiveMarkets(ctx context.Context) ([]storage.Market, error)
}

// Cache holds the active trading pairs in memory. Order placement hits it on
// every request, so lookups never touch the database.
type Cache struct {
	mu          sync.RWMutex
	markets     map[string]storage.Market
	lastRefresh time.Time
}

func NewCache() *Cache {
	return &Cache{
		markets: make(map[string]storage.Market),
	}
}

func (c *Cache) Load(ctx context.Context, store Store) error {
	markets, err := store.ListActiveMarkets(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.markets = make(map[string]storage.Market, len(markets))
	for _, market := range markets {
		symbol := strings.ToUpper(strings.TrimSpace(market.Symbol))
		if symbol == "" {
			continue
		}
		market.Symbol = symbol
		c.markets[symbol] = market
	}
	c.lastRefresh = time.Now().UTC()
	return nil
}

// RefreshLoop reloads the cache on the given interval until ctx is cancelled.
// A failed refresh keeps serving the previous snapshot.
func (c *Cache) RefreshLoop(ctx context.Context, store Store, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Load(ctx, store); err != nil {
				logger.Error("market cache refresh failed", "error", err)
			}
		}
	}
}

func (c *Cache) Get(symbol string) (*storage.Market, bool) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if key == "" {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	market, ok := c.markets[key]
	if !ok {
		return nil, false
	}
	copy := market
	return &copy, true
}

func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.markets))
	for symbol := range c.markets {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markets)
}

func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}
