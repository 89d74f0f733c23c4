package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const grantColumns = `id, user_id, asset, amount::text, status, created_at, updated_at`

func (s *Store) CreateGrant(ctx context.Context, grant RewardGrant) (*RewardGrant, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reward_grants (id, user_id, asset, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+grantColumns+`
	`, grant.ID, grant.UserID, grant.Asset, grant.Amount.String(), GrantStatusDraft)
	return scanGrantRow(row)
}

func (s *Store) GetGrant(ctx context.Context, grantID uuid.UUID) (*RewardGrant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM reward_grants
		WHERE id = $1
	`, grantID)
	grant, err := scanGrantRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return grant, nil
}

func (s *Store) ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]RewardGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM reward_grants
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []RewardGrant
	for rows.Next() {
		grant, err := scanGrantRow(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *grant)
	}
	return grants, rows.Err()
}

// TransitionGrant moves a grant between non-terminal statuses with a
// conditional update. Zero rows means the grant is missing or a concurrent
// operator already moved it.
func (s *Store) TransitionGrant(ctx context.Context, grantID uuid.UUID, from, to string) (*RewardGrant, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE reward_grants
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING `+grantColumns+`
	`, to, grantID, from)
	grant, err := scanGrantRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrentTransition
		}
		return nil, err
	}
	return grant, nil
}

// RedeemGrant flips active→redeemed and credits the user in one transaction,
// so a grant can never pay out twice.
func (s *Store) RedeemGrant(ctx context.Context, grantID, userID uuid.UUID) (*RewardGrant, error) {
	tx, rollback, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollback()

	row := tx.QueryRow(ctx, `
		UPDATE reward_grants
		SET status = $1, updated_at = now()
		WHERE id = $2 AND user_id = $3 AND status = $4
		RETURNING `+grantColumns+`
	`, GrantStatusRedeemed, grantID, userID, GrantStatusActive)
	grant, err := scanGrantRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConcurrentTransition
		}
		return nil, err
	}

	if err := s.credit(ctx, tx, grant.UserID, grant.Asset, grant.Amount); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return grant, nil
}

func scanGrantRow(row pgx.Row) (*RewardGrant, error) {
	var grant RewardGrant
	var amountStr string
	if err := row.Scan(
		&grant.ID, &grant.UserID, &grant.Asset, &amountStr,
		&grant.Status, &grant.CreatedAt, &grant.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if grant.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse grant amount: %w", err)
	}
	return &grant, nil
}
