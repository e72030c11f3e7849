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

type CommitmentStore struct {
	db *pgxpool.Pool
}

func NewCommitmentStore(db *pgxpool.Pool) *CommitmentStore {
	return &CommitmentStore{db: db}
}

const commitmentColumns = `id, belief_id, committer_did, commitment_hash, committed_at, reveal_window_opens, reveal_window_closes, status`

func scanCommitment(row pgx.Row, c *domain.Commitment) error {
	return row.Scan(&c.ID, &c.BeliefID, &c.CommitterDID, &c.CommitmentHash, &c.CommittedAt, &c.RevealWindowOpens, &c.RevealWindowCloses, &c.Status)
}

func (s *CommitmentStore) Create(ctx context.Context, c *domain.Commitment) error {
	err := conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO corroboration_commitments (belief_id, committer_did, commitment_hash, committed_at, reveal_window_opens, reveal_window_closes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		c.BeliefID, c.CommitterDID, c.CommitmentHash, c.CommittedAt, c.RevealWindowOpens, c.RevealWindowCloses, c.Status,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *CommitmentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	return s.get(ctx, id, "")
}

func (s *CommitmentStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *CommitmentStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.Commitment, error) {
	c := &domain.Commitment{}
	err := scanCommitment(conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+commitmentColumns+` FROM corroboration_commitments WHERE id = $1`+lock,
		id,
	), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *CommitmentStore) LockBelief(ctx context.Context, beliefID string) error {
	_, err := conn(ctx, s.db).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('commitments:' || $1))`, beliefID)
	return err
}

func (s *CommitmentStore) EarliestRevealWindow(ctx context.Context, beliefID string) (*time.Time, error) {
	var opens *time.Time
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT MIN(reveal_window_opens) FROM corroboration_commitments WHERE belief_id = $1`,
		beliefID,
	).Scan(&opens)
	if err != nil {
		return nil, err
	}
	return opens, nil
}

func (s *CommitmentStore) CreateReveal(ctx context.Context, r *domain.Reveal) error {
	_, err := conn(ctx, s.db).Exec(ctx,
		`INSERT INTO corroboration_reveals (commitment_id, vote_value, nonce, revealed_at, is_valid, is_late)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.CommitmentID, r.VoteValue, r.Nonce, r.RevealedAt, r.IsValid, r.IsLate,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *CommitmentStore) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.CommitmentStatus) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE corroboration_commitments SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CommitmentStore) ExpireUnrevealed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE corroboration_commitments
		 SET status = 'no_reveal'
		 WHERE status = 'committed' AND reveal_window_closes < $1
		   AND NOT EXISTS (SELECT 1 FROM corroboration_reveals r WHERE r.commitment_id = corroboration_commitments.id)`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *CommitmentStore) ListByBelief(ctx context.Context, beliefID string) ([]domain.Commitment, error) {
	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT `+commitmentColumns+` FROM corroboration_commitments
		 WHERE belief_id = $1 ORDER BY committed_at`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Commitment
	for rows.Next() {
		var c domain.Commitment
		if err := scanCommitment(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *CommitmentStore) ListReveals(ctx context.Context, beliefID string) ([]domain.Reveal, error) {
	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT r.commitment_id, r.vote_value, r.nonce, r.revealed_at, r.is_valid, r.is_late
		 FROM corroboration_reveals r
		 JOIN corroboration_commitments c ON c.id = r.commitment_id
		 WHERE c.belief_id = $1
		 ORDER BY r.revealed_at`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reveal
	for rows.Next() {
		var r domain.Reveal
		if err := rows.Scan(&r.CommitmentID, &r.VoteValue, &r.Nonce, &r.RevealedAt, &r.IsValid, &r.IsLate); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
