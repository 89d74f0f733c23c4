package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ensureBalance creates the (user, asset) row lazily. Every mutation goes
// through the conditional updates below, so a fresh zero row is always safe.
func (s *Store) ensureBalance(ctx context.Context, q querier, userID uuid.UUID, asset string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (user_id, asset, available, locked)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, asset) DO NOTHING
	`, userID, asset)
	return err
}

func (s *Store) lock(ctx context.Context, q querier, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("lock amount must be positive")
	}
	if err := s.ensureBalance(ctx, q, userID, asset); err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE balances
		SET available = available - $3, locked = locked + $3, updated_at = now()
		WHERE user_id = $1 AND asset = $2 AND available >= $3
	`, userID, asset, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *Store) unlock(ctx context.Context, q querier, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("unlock amount must be positive")
	}
	tag, err := q.Exec(ctx, `
		UPDATE balances
		SET locked = locked - $3, available = available + $3, updated_at = now()
		WHERE user_id = $1 AND asset = $2 AND locked >= $3
	`, userID, asset, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientLocked
	}
	return nil
}

func (s *Store) spendLocked(ctx context.Context, q querier, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("spend amount must be positive")
	}
	tag, err := q.Exec(ctx, `
		UPDATE balances
		SET locked = locked - $3, updated_at = now()
		WHERE user_id = $1 AND asset = $2 AND locked >= $3
	`, userID, asset, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientLocked
	}
	return nil
}

func (s *Store) spendAvailable(ctx context.Context, q querier, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("spend amount must be positive")
	}
	tag, err := q.Exec(ctx, `
		UPDATE balances
		SET available = available - $3, updated_at = now()
		WHERE user_id = $1 AND asset = $2 AND available >= $3
	`, userID, asset, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func (s *Store) credit(ctx context.Context, q querier, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("credit amount must be positive")
	}
	if err := s.ensureBalance(ctx, q, userID, asset); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		UPDATE balances
		SET available = available + $3, updated_at = now()
		WHERE user_id = $1 AND asset = $2
	`, userID, asset, amount.String())
	return err
}

func (s *Store) Lock(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	return s.lock(ctx, s.pool, userID, asset, amount)
}

func (s *Store) Unlock(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	return s.unlock(ctx, s.pool, userID, asset, amount)
}

func (s *Store) SpendLocked(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	return s.spendLocked(ctx, s.pool, userID, asset, amount)
}

func (s *Store) Credit(ctx context.Context, userID uuid.UUID, asset string, amount decimal.Decimal) error {
	return s.credit(ctx, s.pool, userID, asset, amount)
}

// CreditWithEvent applies a credit exactly once for the given event id.
// Returns false when the event had already been processed.
func (s *Store) CreditWithEvent(ctx context.Context, eventID string, userID uuid.UUID, asset string, amount decimal.Decimal) (bool, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return false, err
	}
	defer rollback()

	inserted, err := s.markEventProcessed(ctx, tx, eventID)
	if err != nil {
		return false, err
	}
	if !inserted {
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := s.credit(ctx, tx, userID, asset, amount); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetBalance(ctx context.Context, userID uuid.UUID, asset string) (Balance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, asset, available::text, locked::text, updated_at
		FROM balances
		WHERE user_id = $1 AND asset = $2
	`, userID, asset)
	bal, err := scanBalance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{
				UserID:    userID,
				Asset:     asset,
				Available: decimal.Zero,
				Locked:    decimal.Zero,
			}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

func (s *Store) ListBalances(ctx context.Context, userID uuid.UUID) ([]Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, asset, available::text, locked::text, updated_at
		FROM balances
		WHERE user_id = $1
		ORDER BY asset
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []Balance
	for rows.Next() {
		bal, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

// ListLockDiscrepancies surfaces locked balances that are not fully backed by
// open orders. Reported at startup; never auto-corrected.
func (s *Store) ListLockDiscrepancies(ctx context.Context) ([]LockDiscrepancy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.user_id, b.asset, b.locked::text, COALESCE(SUM(o.locked_amount), 0)::text
		FROM balances b
		LEFT JOIN orders o
			ON o.user_id = b.user_id AND o.locked_asset = b.asset AND o.status = 'open'
		GROUP BY b.user_id, b.asset, b.locked
		HAVING b.locked <> COALESCE(SUM(o.locked_amount), 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LockDiscrepancy
	for rows.Next() {
		var d LockDiscrepancy
		var lockedStr, orderLocksStr string
		if err := rows.Scan(&d.UserID, &d.Asset, &lockedStr, &orderLocksStr); err != nil {
			return nil, err
		}
		if d.Locked, err = decimal.NewFromString(lockedStr); err != nil {
			return nil, fmt.Errorf("parse locked balance: %w", err)
		}
		if d.OrderLocks, err = decimal.NewFromString(orderLocksStr); err != nil {
			return nil, fmt.Errorf("parse order locks: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanBalance(row pgx.Row) (Balance, error) {
	var bal Balance
	var availableStr, lockedStr string
	if err := row.Scan(&bal.UserID, &bal.Asset, &availableStr, &lockedStr, &bal.UpdatedAt); err != nil {
		return Balance{}, err
	}
	var err error
	if bal.Available, err = decimal.NewFromString(availableStr); err != nil {
		return Balance{}, fmt.Errorf("parse available balance: %w", err)
	}
	if bal.Locked, err = decimal.NewFromString(lockedStr); err != nil {
		return Balance{}, fmt.Errorf("parse locked balance: %w", err)
	}
	return bal, nil
}
