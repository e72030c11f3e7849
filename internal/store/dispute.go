package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DisputeStore struct {
	db *pgxpool.Pool
}

func NewDisputeStore(db *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{db: db}
}

func (s *DisputeStore) Create(ctx context.Context, d *domain.Dispute) error {
	err := conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO disputes (belief_id, disputer_id, reason, stake_amount, filed_at, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		d.BeliefID, d.DisputerDID, d.Reason, d.StakeAmount, d.FiledAt, d.Outcome,
	).Scan(&d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *DisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return s.get(ctx, id, "")
}

func (s *DisputeStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *DisputeStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.Dispute, error) {
	d := &domain.Dispute{}
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT id, belief_id, disputer_id, reason, stake_amount, filed_at, outcome, resolved_at
		 FROM disputes WHERE id = $1`+lock,
		id,
	).Scan(&d.ID, &d.BeliefID, &d.DisputerDID, &d.Reason, &d.StakeAmount, &d.FiledAt, &d.Outcome, &d.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DisputeStore) Resolve(ctx context.Context, id uuid.UUID, outcome domain.DisputeOutcome, at time.Time) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE disputes SET outcome = $2, resolved_at = $3
		 WHERE id = $1 AND outcome = 'pending'`,
		id, outcome, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetQuality derives a filer's record. Pending disputes count as filed so
// open filings use up the grace allowance; withdrawn ones do not count.
func (s *DisputeStore) GetQuality(ctx context.Context, did string) (domain.DisputeQuality, error) {
	q := domain.DisputeQuality{IdentityDID: did}
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE outcome <> 'withdrawn'),
		        COUNT(*) FILTER (WHERE outcome = 'upheld'),
		        COUNT(*) FILTER (WHERE outcome = 'dismissed')
		 FROM disputes WHERE disputer_id = $1`,
		did,
	).Scan(&q.DisputesFiled, &q.DisputesWon, &q.DisputesLost)
	return q, err
}
