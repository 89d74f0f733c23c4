package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	demoUserID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	traderUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

func main() {
	env := getEnv("WALLET_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: WALLET_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "wallet_core")
	user := getEnv("POSTGRES_USER", "wallet")
	password := getEnv("POSTGRES_PASSWORD", "wallet")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	if err := seedMarkets(ctx, pool); err != nil {
		log.Fatalf("seed markets: %v", err)
	}
	fmt.Println("✓ Markets seeded")

	if err := seedBalances(ctx, pool); err != nil {
		log.Fatalf("seed balances: %v", err)
	}
	fmt.Println("✓ Balances seeded")

	if err := seedPoolAddresses(ctx, pool); err != nil {
		log.Fatalf("seed pool addresses: %v", err)
	}
	fmt.Println("✓ Pool addresses seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTestData(ctx, pool); err != nil {
			log.Fatalf("seed test data: %v", err)
		}
		fmt.Println("✓ Test data seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo users:")
	fmt.Printf("  %s (funded)\n", demoUserID)
	fmt.Printf("  %s (funded)\n", traderUserID)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func seedMarkets(ctx context.Context, pool *pgxpool.Pool) error {
	markets := []struct {
		symbol     string
		baseAsset  string
		quoteAsset string
		feeRate    string
	}{
		{"BTC-USDT", "BTC", "USDT", "0.001"},
		{"ETH-USDT", "ETH", "USDT", "0.001"},
		{"SOL-USDT", "SOL", "USDT", "0.002"},
		{"TRX-USDT", "TRX", "USDT", "0.002"},
	}

	for _, market := range markets {
		_, err := pool.Exec(ctx, `
			INSERT INTO markets (symbol, base_asset, quote_asset, fee_rate, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (symbol) DO UPDATE
			SET fee_rate = EXCLUDED.fee_rate,
			    status = EXCLUDED.status
		`, market.symbol, market.baseAsset, market.quoteAsset, market.feeRate, "active")
		if err != nil {
			return err
		}
	}

	return nil
}

func seedBalances(ctx context.Context, pool *pgxpool.Pool) error {
	demoBalances := map[string]string{
		"BTC":  "10",
		"ETH":  "100",
		"USDT": "500000",
	}
	traderBalances := map[string]string{
		"BTC":  "5",
		"ETH":  "50",
		"USDT": "250000",
	}

	now := time.Now()

	for asset, amount := range demoBalances {
		if err := upsertBalance(ctx, pool, demoUserID, asset, amount, now); err != nil {
			return err
		}
	}
	for asset, amount := range traderBalances {
		if err := upsertBalance(ctx, pool, traderUserID, asset, amount, now); err != nil {
			return err
		}
	}

	return nil
}

func upsertBalance(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, asset, available string, now time.Time) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO balances (user_id, asset, available, locked, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (user_id, asset) DO UPDATE
		SET available = EXCLUDED.available,
		    locked = EXCLUDED.locked,
		    updated_at = EXCLUDED.updated_at
	`, userID, asset, available, now)
	return err
}

func seedPoolAddresses(ctx context.Context, pool *pgxpool.Pool) error {
	networks := map[string]string{
		"BTC": "bc1qseed%04d",
		"ETH": "0xseed%04d",
		"TRX": "Tseed%04d",
		"BSC": "0xbseed%04d",
		"SOL": "Sseed%04d",
	}

	for network, format := range networks {
		for i := 0; i < 50; i++ {
			address := fmt.Sprintf(format, i)
			_, err := pool.Exec(ctx, `
				INSERT INTO pool_addresses (id, network, address, status)
				VALUES ($1, $2, $3, 'available')
				ON CONFLICT (network, address) DO NOTHING
			`, uuid.New(), network, address)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
