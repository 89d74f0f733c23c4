package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const overrideColumns = `
	symbol, active, expires_at,
	last_price::text, step_size::text, flip_probability,
	reversion_target::text, reversion_strength,
	shock_probability, shock_multiplier::text, updated_at`

func (s *Store) GetOverride(ctx context.Context, symbol string) (*PriceOverride, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+overrideColumns+`
		FROM price_overrides
		WHERE symbol = $1
	`, symbol)
	override, err := scanOverrideRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return override, nil
}

func (s *Store) ListActiveOverrides(ctx context.Context) ([]PriceOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+overrideColumns+`
		FROM price_overrides
		WHERE active AND expires_at > now()
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []PriceOverride
	for rows.Next() {
		override, err := scanOverrideRow(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *override)
	}
	return overrides, rows.Err()
}

// UpsertOverride installs or replaces the synthetic price configuration for a
// symbol. The walk restarts from the given last price.
func (s *Store) UpsertOverride(ctx context.Context, o PriceOverride) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_overrides (symbol, active, expires_at, last_price, step_size,
			flip_probability, reversion_target, reversion_strength,
			shock_probability, shock_multiplier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol) DO UPDATE SET
			active = EXCLUDED.active,
			expires_at = EXCLUDED.expires_at,
			last_price = EXCLUDED.last_price,
			step_size = EXCLUDED.step_size,
			flip_probability = EXCLUDED.flip_probability,
			reversion_target = EXCLUDED.reversion_target,
			reversion_strength = EXCLUDED.reversion_strength,
			shock_probability = EXCLUDED.shock_probability,
			shock_multiplier = EXCLUDED.shock_multiplier,
			updated_at = now()
	`, o.Symbol, o.Active, o.ExpiresAt, o.LastPrice.String(), o.StepSize.String(),
		o.FlipProbability, o.ReversionTarget.String(), o.ReversionStrength,
		o.ShockProbability, o.ShockMultiplier.String())
	return err
}

// UpdateOverridePrice persists the latest step of the synthetic walk so a
// restart resumes from where the walk left off.
func (s *Store) UpdateOverridePrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE price_overrides
		SET last_price = $2, updated_at = now()
		WHERE symbol = $1
	`, symbol, price.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateOverride turns the synthetic source off; the external source takes
// over on the next price read.
func (s *Store) DeactivateOverride(ctx context.Context, symbol string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE price_overrides
		SET active = false, updated_at = now()
		WHERE symbol = $1
	`, symbol)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOverrideRow(row pgx.Row) (*PriceOverride, error) {
	var o PriceOverride
	var lastPrice, stepSize, reversionTarget, shockMultiplier string
	if err := row.Scan(
		&o.Symbol, &o.Active, &o.ExpiresAt,
		&lastPrice, &stepSize, &o.FlipProbability,
		&reversionTarget, &o.ReversionStrength,
		&o.ShockProbability, &shockMultiplier, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if o.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
		return nil, fmt.Errorf("parse override last price: %w", err)
	}
	if o.StepSize, err = decimal.NewFromString(stepSize); err != nil {
		return nil, fmt.Errorf("parse override step size: %w", err)
	}
	if o.ReversionTarget, err = decimal.NewFromString(reversionTarget); err != nil {
		return nil, fmt.Errorf("parse override reversion target: %w", err)
	}
	if o.ShockMultiplier, err = decimal.NewFromString(shockMultiplier); err != nil {
		return nil, fmt.Errorf("parse override shock multiplier: %w", err)
	}
	return &o, nil
}
