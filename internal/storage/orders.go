package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, user_id, symbol, base_asset, quote_asset, side, type,
	price::text, base_amount::text, fee_rate::text,
	locked_asset, locked_amount::text, status, created_at, updated_at`

type OrderFilter struct {
	Symbol string
	Status string
	Limit  int
}

// CreateOrderWithLock locks the order's funds and inserts the open order in a
// single transaction, so no lock can exist without a backing order.
func (s *Store) CreateOrderWithLock(ctx context.Context, order Order) (*Order, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	if err := s.lock(ctx, tx, order.UserID, order.LockedAsset, order.LockedAmount); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, symbol, base_asset, quote_asset, side, type,
			price, base_amount, fee_rate, locked_asset, locked_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns+`
	`, order.ID, order.UserID, order.Symbol, order.BaseAsset, order.QuoteAsset,
		order.Side, order.Type, order.Price.String(), order.BaseAmount.String(),
		order.FeeRate.String(), order.LockedAsset, order.LockedAmount.String(), OrderStatusOpen)

	stored, err := scanOrderRow(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, orderID)
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, userID uuid.UUID, filter OrderFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	idx := 2

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", idx)
		args = append(args, filter.Symbol)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListOpenOrders returns the oldest open orders first, bounding one engine tick.
func (s *Store) ListOpenOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) ListOpenOrdersByUser(ctx context.Context, userID uuid.UUID, symbol string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND status = 'open'`
	args := []any{userID}
	if symbol != "" {
		query += " AND symbol = $2"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// CancelOrder flips open→cancelled and releases the lock in one transaction.
// Zero rows affected on the flip means the other path (a concurrent fill, or a
// duplicate cancel) already moved the order to a terminal status.
func (s *Store) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	row := tx.QueryRow(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2 AND user_id = $3 AND status = 'open'
		RETURNING `+orderColumns+`
	`, OrderStatusCancelled, orderID, userID)

	order, err := scanOrderRow(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		existing, getErr := s.getOrderOwned(ctx, tx, orderID, userID)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrConcurrentTransition
	}

	if err := s.unlock(ctx, tx, order.UserID, order.LockedAsset, order.LockedAmount); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

// SettleOrder executes a fill plan: the conditional open→filled flip guards
// the race with cancellation, then locked funds are spent, proceeds credited
// and the trade recorded, all in one transaction.
func (s *Store) SettleOrder(ctx context.Context, plan SettlementPlan) (*Trade, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = 'open'
	`, OrderStatusFilled, plan.OrderID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConcurrentTransition
	}

	if err := s.spendLocked(ctx, tx, plan.UserID, plan.SpendAsset, plan.SpendAmount); err != nil {
		return nil, err
	}
	if err := s.credit(ctx, tx, plan.UserID, plan.CreditAsset, plan.CreditAmount); err != nil {
		return nil, err
	}

	trade, err := s.insertTrade(ctx, tx, plan)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return trade, nil
}

// SettleMarketOrder inserts an already-filled order and applies the balance
// movements in one transaction. Market orders never pass through the locked
// phase: the spend comes straight out of available.
func (s *Store) SettleMarketOrder(ctx context.Context, order Order, plan SettlementPlan) (*Order, *Trade, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer rollback()

	if err := s.spendAvailable(ctx, tx, plan.UserID, plan.SpendAsset, plan.SpendAmount); err != nil {
		return nil, nil, err
	}
	if err := s.credit(ctx, tx, plan.UserID, plan.CreditAsset, plan.CreditAmount); err != nil {
		return nil, nil, err
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, symbol, base_asset, quote_asset, side, type,
			price, base_amount, fee_rate, locked_asset, locked_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns+`
	`, order.ID, order.UserID, order.Symbol, order.BaseAsset, order.QuoteAsset,
		order.Side, order.Type, order.Price.String(), order.BaseAmount.String(),
		order.FeeRate.String(), order.LockedAsset, order.LockedAmount.String(), OrderStatusFilled)

	stored, err := scanOrderRow(row)
	if err != nil {
		return nil, nil, err
	}

	trade, err := s.insertTrade(ctx, tx, plan)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return stored, trade, nil
}

func (s *Store) getOrderOwned(ctx context.Context, q querier, orderID, userID uuid.UUID) (*Order, error) {
	row := q.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID)
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrderRow(row pgx.Row) (*Order, error) {
	var order Order
	var priceStr, baseAmountStr, feeRateStr, lockedAmountStr string
	if err := row.Scan(
		&order.ID, &order.UserID, &order.Symbol, &order.BaseAsset, &order.QuoteAsset,
		&order.Side, &order.Type, &priceStr, &baseAmountStr, &feeRateStr,
		&order.LockedAsset, &lockedAmountStr, &order.Status, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if order.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parse order price: %w", err)
	}
	if order.BaseAmount, err = decimal.NewFromString(baseAmountStr); err != nil {
		return nil, fmt.Errorf("parse order base amount: %w", err)
	}
	if order.FeeRate, err = decimal.NewFromString(feeRateStr); err != nil {
		return nil, fmt.Errorf("parse order fee rate: %w", err)
	}
	if order.LockedAmount, err = decimal.NewFromString(lockedAmountStr); err != nil {
		return nil, fmt.Errorf("parse order locked amount: %w", err)
	}
	return &order, nil
}
