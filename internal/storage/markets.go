package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (s *Store) GetMarketBySymbol(ctx context.Context, symbol string) (*Market, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT symbol, base_asset, quote_asset, fee_rate::text, status
		FROM markets
		WHERE symbol = $1
	`, symbol)
	market, err := scanMarketRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return market, nil
}

func (s *Store) ListActiveMarkets(ctx context.Context) ([]Market, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, base_asset, quote_asset, fee_rate::text, status
		FROM markets
		WHERE status = $1
		ORDER BY symbol ASC
	`, MarketStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []Market
	for rows.Next() {
		market, err := scanMarketRow(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *market)
	}
	return markets, rows.Err()
}

func (s *Store) UpsertMarket(ctx context.Context, m Market) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets (symbol, base_asset, quote_asset, fee_rate, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			base_asset = EXCLUDED.base_asset,
			quote_asset = EXCLUDED.quote_asset,
			fee_rate = EXCLUDED.fee_rate,
			status = EXCLUDED.status
	`, m.Symbol, m.BaseAsset, m.QuoteAsset, m.FeeRate.String(), m.Status)
	return err
}

func scanMarketRow(row pgx.Row) (*Market, error) {
	var market Market
	var feeRateStr string
	if err := row.Scan(&market.Symbol, &market.BaseAsset, &market.QuoteAsset, &feeRateStr, &market.Status); err != nil {
		return nil, err
	}

	var err error
	if market.FeeRate, err = decimal.NewFromString(feeRateStr); err != nil {
		return nil, fmt.Errorf("parse market fee rate: %w", err)
	}
	return &market, nil
}
