package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AllocateAddresses claims one available address per requested network for the
// user, oldest row first, all in a single transaction. SKIP LOCKED keeps
// concurrent signups from serializing on the same head-of-pool row. If any
// network has no free address the whole allocation rolls back and a
// PoolExhaustedError names the first empty network.
func (s *Store) AllocateAddresses(ctx context.Context, userID uuid.UUID, networks []string) ([]PoolAddress, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	allocated := make([]PoolAddress, 0, len(networks))
	for _, network := range networks {
		addr, err := s.claimAddress(ctx, tx, userID, network)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &PoolExhaustedError{Network: network}
			}
			return nil, err
		}
		allocated = append(allocated, *addr)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return allocated, nil
}

func (s *Store) claimAddress(ctx context.Context, q querier, userID uuid.UUID, network string) (*PoolAddress, error) {
	row := q.QueryRow(ctx, `
		UPDATE pool_addresses
		SET status = $1, assigned_user_id = $2, assigned_at = now()
		WHERE id = (
			SELECT id FROM pool_addresses
			WHERE network = $3 AND status = $4
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, network, address, status, assigned_user_id, assigned_at, created_at
	`, AddressStatusAssigned, userID, network, AddressStatusAvailable)
	return scanPoolAddress(row)
}

func (s *Store) ListAddressesByUser(ctx context.Context, userID uuid.UUID) ([]PoolAddress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, network, address, status, assigned_user_id, assigned_at, created_at
		FROM pool_addresses
		WHERE assigned_user_id = $1
		ORDER BY network ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []PoolAddress
	for rows.Next() {
		addr, err := scanPoolAddress(rows)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, *addr)
	}
	return addrs, rows.Err()
}

// CountAvailableAddresses reports pool depth per network for monitoring.
func (s *Store) CountAvailableAddresses(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT network, count(*)
		FROM pool_addresses
		WHERE status = $1
		GROUP BY network
	`, AddressStatusAvailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var network string
		var count int64
		if err := rows.Scan(&network, &count); err != nil {
			return nil, err
		}
		counts[network] = count
	}
	return counts, rows.Err()
}

// InsertPoolAddress adds a fresh address to the pool. Duplicate addresses on
// the same network are rejected by the unique constraint.
func (s *Store) InsertPoolAddress(ctx context.Context, network, address string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_addresses (id, network, address, status)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), network, address, AddressStatusAvailable)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateAddress
	}
	return err
}

func scanPoolAddress(row pgx.Row) (*PoolAddress, error) {
	var addr PoolAddress
	var assignedUserID *uuid.UUID
	var assignedAt *time.Time
	if err := row.Scan(
		&addr.ID, &addr.Network, &addr.Address, &addr.Status,
		&assignedUserID, &assignedAt, &addr.CreatedAt,
	); err != nil {
		return nil, err
	}
	addr.AssignedTo = assignedUserID
	addr.AssignedAt = assignedAt
	return &addr, nil
}
