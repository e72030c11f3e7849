package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrustEdgeStore struct {
	db *pgxpool.Pool
}

func NewTrustEdgeStore(db *pgxpool.Pool) *TrustEdgeStore {
	return &TrustEdgeStore{db: db}
}

const trustEdgeColumns = `source_did, target_did, domain, competence, integrity, confidentiality, judgment,
	can_delegate, delegation_depth, expires_at, created_at, updated_at`

func scanTrustEdge(row pgx.Row, e *domain.TrustEdge) error {
	var depth int32
	if err := row.Scan(&e.SourceDID, &e.TargetDID, &e.Domain, &e.Competence, &e.Integrity, &e.Confidentiality, &e.Judgment,
		&e.CanDelegate, &depth, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	e.DelegationDepth = uint32(depth)
	return nil
}

// Upsert is last-write-wins on (source_did, target_did, domain).
func (s *TrustEdgeStore) Upsert(ctx context.Context, e *domain.TrustEdge) error {
	return conn(ctx, s.db).QueryRow(ctx,
		`INSERT INTO trust_edges (source_did, target_did, domain, competence, integrity, confidentiality, judgment, can_delegate, delegation_depth, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (source_did, target_did, domain)
		 DO UPDATE SET competence = EXCLUDED.competence,
		               integrity = EXCLUDED.integrity,
		               confidentiality = EXCLUDED.confidentiality,
		               judgment = EXCLUDED.judgment,
		               can_delegate = EXCLUDED.can_delegate,
		               delegation_depth = EXCLUDED.delegation_depth,
		               expires_at = EXCLUDED.expires_at,
		               updated_at = NOW()
		 RETURNING created_at, updated_at`,
		e.SourceDID, e.TargetDID, e.Domain, e.Competence, e.Integrity, e.Confidentiality, e.Judgment,
		e.CanDelegate, int32(e.DelegationDepth), e.ExpiresAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (s *TrustEdgeStore) Get(ctx context.Context, source, target, dom string, now time.Time) (*domain.TrustEdge, error) {
	e := &domain.TrustEdge{}
	err := scanTrustEdge(conn(ctx, s.db).QueryRow(ctx,
		`SELECT `+trustEdgeColumns+`
		 FROM trust_edges
		 WHERE source_did = $1 AND target_did = $2 AND domain = $3
		   AND (expires_at IS NULL OR expires_at > $4)`,
		source, target, dom, now,
	), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *TrustEdgeStore) ListFrom(ctx context.Context, did string, q domain.EdgeQuery) ([]domain.TrustEdge, error) {
	return s.list(ctx, "source_did", did, q)
}

func (s *TrustEdgeStore) ListTo(ctx context.Context, did string, q domain.EdgeQuery) ([]domain.TrustEdge, error) {
	return s.list(ctx, "target_did", did, q)
}

func (s *TrustEdgeStore) list(ctx context.Context, column, did string, q domain.EdgeQuery) ([]domain.TrustEdge, error) {
	conditions := []string{column + " = $1"}
	args := []any{did}

	if q.Domain != nil {
		args = append(args, *q.Domain)
		if q.IncludeGlobal && *q.Domain != "" {
			conditions = append(conditions, fmt.Sprintf("(domain = $%d OR domain = '')", len(args)))
		} else {
			conditions = append(conditions, fmt.Sprintf("domain = $%d", len(args)))
		}
	}

	if !q.IncludeExpired {
		now := q.Now
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, now)
		conditions = append(conditions, fmt.Sprintf("(expires_at IS NULL OR expires_at > $%d)", len(args)))
	}

	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT `+trustEdgeColumns+`
		 FROM trust_edges
		 WHERE `+strings.Join(conditions, " AND ")+`
		 ORDER BY source_did, target_did, domain`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list trust edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.TrustEdge
	for rows.Next() {
		var e domain.TrustEdge
		if err := scanTrustEdge(rows, &e); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *TrustEdgeStore) Delete(ctx context.Context, source, target, dom string) error {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`DELETE FROM trust_edges WHERE source_did = $1 AND target_did = $2 AND domain = $3`,
		source, target, dom,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *TrustEdgeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`DELETE FROM trust_edges WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
