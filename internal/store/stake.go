package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StakeStore struct {
	db *pgxpool.Pool
}

func NewStakeStore(db *pgxpool.Pool) *StakeStore {
	return &StakeStore{db: db}
}

func (s *StakeStore) Get(ctx context.Context, did string) (*domain.StakePosition, error) {
	return s.get(ctx, did, "")
}

func (s *StakeStore) Lock(ctx context.Context, did string) (*domain.StakePosition, error) {
	return s.get(ctx, did, " FOR UPDATE")
}

func (s *StakeStore) get(ctx context.Context, did, lock string) (*domain.StakePosition, error) {
	p := &domain.StakePosition{}
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT identity_did, amount, locked_amount, status, updated_at
		 FROM stake_positions WHERE identity_did = $1`+lock,
		did,
	).Scan(&p.IdentityDID, &p.Amount, &p.LockedAmount, &p.Status, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *StakeStore) Deposit(ctx context.Context, did string, amount float64) (*domain.StakePosition, error) {
	p := &domain.StakePosition{}
	err := conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO stake_positions (identity_did, amount)
		 VALUES ($1, $2)
		 ON CONFLICT (identity_did)
		 DO UPDATE SET amount = stake_positions.amount + EXCLUDED.amount,
		               updated_at = NOW()
		 RETURNING identity_did, amount, locked_amount, status, updated_at`,
		did, amount,
	).Scan(&p.IdentityDID, &p.Amount, &p.LockedAmount, &p.Status, &p.UpdatedAt)
	return p, err
}

func (s *StakeStore) Update(ctx context.Context, p *domain.StakePosition) error {
	err := conn(ctx, s.db).QueryRow(ctx,
		`UPDATE stake_positions
		 SET amount = $2, locked_amount = $3, status = $4, updated_at = NOW()
		 WHERE identity_did = $1
		 RETURNING updated_at`,
		p.IdentityDID, p.Amount, p.LockedAmount, p.Status,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
