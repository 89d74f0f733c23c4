package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// seedTestData installs a synthetic price override so the engine has a moving
// reference price without a live market feed.
func seedTestData(ctx context.Context, pool *pgxpool.Pool) error {
	overrides := []struct {
		symbol            string
		lastPrice         string
		stepSize          string
		flipProbability   float64
		reversionTarget   string
		reversionStrength float64
		shockProbability  float64
		shockMultiplier   string
	}{
		{"BTC-USDT", "30000", "25", 0.45, "30000", 0.02, 0.005, "1.2"},
		{"ETH-USDT", "2000", "3", 0.45, "2000", 0.02, 0.005, "1.15"},
	}

	expiresAt := time.Now().Add(24 * time.Hour)

	for _, o := range overrides {
		_, err := pool.Exec(ctx, `
			INSERT INTO price_overrides (
				symbol, active, expires_at, last_price, step_size,
				flip_probability, reversion_target, reversion_strength,
				shock_probability, shock_multiplier, updated_at
			)
			VALUES ($1, true, $2, $3, $4, $5, $6, $7, $8, $9, now())
			ON CONFLICT (symbol) DO UPDATE
			SET active = true,
			    expires_at = EXCLUDED.expires_at,
			    last_price = EXCLUDED.last_price,
			    step_size = EXCLUDED.step_size,
			    flip_probability = EXCLUDED.flip_probability,
			    reversion_target = EXCLUDED.reversion_target,
			    reversion_strength = EXCLUDED.reversion_strength,
			    shock_probability = EXCLUDED.shock_probability,
			    shock_multiplier = EXCLUDED.shock_multiplier,
			    updated_at = now()
		`, o.symbol, expiresAt, o.lastPrice, o.stepSize,
			o.flipProbability, o.reversionTarget, o.reversionStrength,
			o.shockProbability, o.shockMultiplier)
		if err != nil {
			return err
		}
	}

	return nil
}
