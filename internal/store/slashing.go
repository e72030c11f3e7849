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

type SlashingStore struct {
	db *pgxpool.Pool
}

func NewSlashingStore(db *pgxpool.Pool) *SlashingStore {
	return &SlashingStore{db: db}
}

const slashingColumns = `id, validator_did, offense, severity, evidence, stake_at_risk, slash_amount, status,
	reported_by, appeal_reason, appeal_deadline, decided_at, created_at`

func scanSlashingEvent(row pgx.Row, e *domain.SlashingEvent) error {
	return row.Scan(&e.ID, &e.ValidatorDID, &e.Offense, &e.Severity, &e.Evidence, &e.StakeAtRisk, &e.SlashAmount, &e.Status,
		&e.ReportedBy, &e.AppealReason, &e.AppealDeadline, &e.DecidedAt, &e.CreatedAt)
}

func (s *SlashingStore) Create(ctx context.Context, e *domain.SlashingEvent) error {
	evidence := e.Evidence
	if evidence == nil {
		evidence = map[string]any{}
	}
	return conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO slashing_events (validator_did, offense, severity, evidence, stake_at_risk, slash_amount, status, reported_by, appeal_deadline)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		e.ValidatorDID, e.Offense, e.Severity, evidence, e.StakeAtRisk, e.SlashAmount, e.Status, e.ReportedBy, e.AppealDeadline,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *SlashingStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	return s.get(ctx, id, "")
}

func (s *SlashingStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *SlashingStore) get(ctx context.Context, id uuid.UUID, lock string) (*domain.SlashingEvent, error) {
	e := &domain.SlashingEvent{}
	err := scanSlashingEvent(conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+slashingColumns+` FROM slashing_events WHERE id = $1`+lock,
		id,
	), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *SlashingStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.SlashingStatus, to domain.SlashingStatus, decidedAt *time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE slashing_events
		 SET status = $2, decided_at = COALESCE($3, decided_at)
		 WHERE id = $1 AND status = ANY($4)`,
		id, to, decidedAt, allowed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SlashingStore) Appeal(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE slashing_events
		 SET status = 'appealed', appeal_reason = $2
		 WHERE id = $1 AND status = 'pending' AND appeal_deadline > $3`,
		id, reason, now,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SlashingStore) ListByValidator(ctx context.Context, did string) ([]domain.SlashingEvent, error) {
	return s.list(ctx,
		`SELECT `+slashingColumns+` FROM slashing_events
		 WHERE validator_did = $1 ORDER BY created_at DESC`,
		did,
	)
}

// ListMatured returns pending events whose appeal deadline has passed.
func (s *SlashingStore) ListMatured(ctx context.Context, now time.Time, limit int) ([]domain.SlashingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx,
		`SELECT `+slashingColumns+` FROM slashing_events
		 WHERE status = 'pending' AND appeal_deadline <= $1
		 ORDER BY appeal_deadline LIMIT $2`,
		now, limit,
	)
}

func (s *SlashingStore) list(ctx context.Context, sql string, args ...any) ([]domain.SlashingEvent, error) {
	rows, err := conn(ctx, s.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SlashingEvent
	for rows.Next() {
		var e domain.SlashingEvent
		if err := scanSlashingEvent(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SlashingStore) CountOpen(ctx context.Context, did string, exclude uuid.UUID) (int, error) {
	var n int
	err := conn(ctx, s.db).QueryRow(ctx,
		`SELECT COUNT(*) FROM slashing_events
		 WHERE validator_did = $1 AND id <> $2 AND status IN ('pending', 'appealed')`,
		did, exclude,
	).Scan(&n)
	return n, err
}
