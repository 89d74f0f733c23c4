package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const tradeColumns = `
	id, order_id, user_id, symbol, side, type,
	price::text, base_amount::text, fee_asset, fee_amount::text,
	gross_base::text, net_base::text, gross_quote::text, net_quote::text,
	executed_at`

func (s *Store) insertTrade(ctx context.Context, q querier, plan SettlementPlan) (*Trade, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO trades (id, order_id, user_id, symbol, side, type,
			price, base_amount, fee_asset, fee_amount,
			gross_base, net_base, gross_quote, net_quote)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+tradeColumns+`
	`, uuid.New(), plan.OrderID, plan.UserID, plan.Symbol, plan.Side, plan.Type,
		plan.Price.String(), plan.BaseAmount.String(), plan.FeeAsset, plan.FeeAmount.String(),
		plan.GrossBase.String(), plan.NetBase.String(), plan.GrossQuote.String(), plan.NetQuote.String())
	return scanTradeRow(row)
}

func (s *Store) ListTrades(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE user_id = $1`
	args := []any{userID}
	if symbol != "" {
		query += " AND symbol = $2"
		args = append(args, symbol)
		query += " ORDER BY executed_at DESC, id DESC LIMIT $3"
	} else {
		query += " ORDER BY executed_at DESC, id DESC LIMIT $2"
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTradeRow(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

func scanTradeRow(row pgx.Row) (*Trade, error) {
	var trade Trade
	strs := make([]string, 7)
	if err := row.Scan(
		&trade.ID, &trade.OrderID, &trade.UserID, &trade.Symbol, &trade.Side, &trade.Type,
		&strs[0], &strs[1], &trade.FeeAsset, &strs[2],
		&strs[3], &strs[4], &strs[5], &strs[6],
		&trade.ExecutedAt,
	); err != nil {
		return nil, err
	}

	dests := []*decimal.Decimal{
		&trade.Price, &trade.BaseAmount, &trade.FeeAmount,
		&trade.GrossBase, &trade.NetBase, &trade.GrossQuote, &trade.NetQuote,
	}
	for i, dest := range dests {
		d, err := decimal.NewFromString(strs[i])
		if err != nil {
			return nil, fmt.Errorf("parse trade decimal: %w", err)
		}
		*dest = d
	}
	return &trade, nil
}
