package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdentityStore struct {
	db *pgxpool.Pool
}

func NewIdentityStore(db *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) Create(ctx context.Context, id *domain.Identity) error {
	err := conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO identities (did, public_key) VALUES ($1, $2)
		 RETURNING created_at`,
		id.DID, []byte(id.PublicKey),
	).Scan(&id.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *IdentityStore) GetByDID(ctx context.Context, did string) (*domain.Identity, error) {
	id := &domain.Identity{}
	var key []byte
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT did, public_key, created_at FROM identities WHERE did = $1`,
		did,
	).Scan(&id.DID, &key, &id.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id.PublicKey = key
	return id, nil
}
