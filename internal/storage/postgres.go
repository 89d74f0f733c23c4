package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientLocked   = errors.New("insufficient locked balance")
	ErrConcurrentTransition = errors.New("concurrent status transition")
	ErrDuplicateAddress     = errors.New("duplicate pool address")
)

// PoolExhaustedError identifies the network whose address pool ran dry.
type PoolExhaustedError struct {
	Network string
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("address pool exhausted for network %s", e.Network)
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so balance primitives
// can run standalone (autocommit) or composed inside a settlement transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) begin(ctx context.Context) (pgx.Tx, func(), error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	rollback := func() {
		_ = tx.Rollback(ctx)
	}
	return tx, rollback, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
