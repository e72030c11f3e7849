package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type CorroborationStore struct {
	db *pgxpool.Pool
}

func NewCorroborationStore(db *pgxpool.Pool) *CorroborationStore {
	return &CorroborationStore{db: db}
}

func (s *CorroborationStore) CreateEvidence(ctx context.Context, e *domain.CorroborationEvidence) error {
	var embedding *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	q := conn(ctx, s.db)
	err := q.QueryRow(ctx,
		`INSERT INTO corroboration_evidence (belief_id, content, content_hash, embedding, status, confidence_boost)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		e.BeliefID, e.Content, e.ContentHash, embedding, e.Status, e.ConfidenceBoost,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}

	for i := range e.Sources {
		if _, err := s.AddSource(ctx, e.BeliefID, &e.Sources[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *CorroborationStore) GetEvidence(ctx context.Context, beliefID string) (*domain.CorroborationEvidence, error) {
	return s.getEvidence(ctx, beliefID, "")
}

func (s *CorroborationStore) LockEvidence(ctx context.Context, beliefID string) (*domain.CorroborationEvidence, error) {
	return s.getEvidence(ctx, beliefID, " FOR UPDATE")
}

func (s *CorroborationStore) getEvidence(ctx context.Context, beliefID, lock string) (*domain.CorroborationEvidence, error) {
	q := conn(ctx, s.db)
	e := &domain.CorroborationEvidence{}
	err := q.QueryRow(ctx,
		`SELECT belief_id, content, content_hash, status, confidence_boost, created_at, updated_at
		 FROM corroboration_evidence WHERE belief_id = $1`+lock,
		beliefID,
	).Scan(&e.BeliefID, &e.Content, &e.ContentHash, &e.Status, &e.ConfidenceBoost, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	sources, err := s.listSources(ctx, q, beliefID)
	if err != nil {
		return nil, err
	}
	e.Sources = sources
	return e, nil
}

func (s *CorroborationStore) listSources(ctx context.Context, q querier, beliefID string) ([]domain.SourceInfo, error) {
	rows, err := q.Query(ctx,
		`SELECT source_id, source_type, content_hash, similarity, corroborated_at
		 FROM corroboration_sources WHERE belief_id = $1
		 ORDER BY id`,
		beliefID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.SourceInfo
	for rows.Next() {
		var src domain.SourceInfo
		if err := rows.Scan(&src.SourceID, &src.SourceType, &src.ContentHash, &src.Similarity, &src.CorroboratedAt); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *CorroborationStore) AddSource(ctx context.Context, beliefID string, src *domain.SourceInfo) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`INSERT INTO corroboration_sources (belief_id, source_id, source_type, content_hash, similarity, corroborated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (belief_id, source_id) DO NOTHING`,
		beliefID, src.SourceID, src.SourceType, src.ContentHash, src.Similarity, src.CorroboratedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CorroborationStore) UpdateStatus(ctx context.Context, beliefID string, status domain.CorroborationStatus, boost float64) error {
	tag, err := conn(ctx, s.db).Exec(ctx,
		`UPDATE corroboration_evidence
		 SET status = $2, confidence_boost = $3, updated_at = NOW()
		 WHERE belief_id = $1`,
		beliefID, status, boost,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByMinCorroborations returns evidence whose effective corroboration
// count is at least minCorroborations, highest first. The origin source is the
// earliest row per belief and never counts.
func (s *CorroborationStore) ListByMinCorroborations(ctx context.Context, minCorroborations int, requireDiversity bool, limit int) ([]domain.CorroborationEvidence, error) {
	if limit <= 0 {
		limit = 100
	}
	q := conn(ctx, s.db)
	rows, err := q.Query(ctx,
		`WITH ranked AS (
		     SELECT belief_id, source_type,
		            ROW_NUMBER() OVER (PARTITION BY belief_id ORDER BY id) AS rn
		     FROM corroboration_sources
		 ), counts AS (
		     SELECT belief_id,
		            COUNT(*) FILTER (WHERE rn > 1) AS confirmations,
		            COUNT(DISTINCT source_type) FILTER (WHERE rn > 1) AS types
		     FROM ranked
		     GROUP BY belief_id
		 ), effective AS (
		     SELECT belief_id,
		            CASE WHEN $2::boolean THEN LEAST(confirmations, types) ELSE confirmations END AS n
		     FROM counts
		 )
		 SELECT e.belief_id, e.content, e.content_hash, e.status, e.confidence_boost, e.created_at, e.updated_at
		 FROM corroboration_evidence e
		 JOIN effective c ON c.belief_id = e.belief_id
		 WHERE c.n >= $1
		 ORDER BY c.n DESC, e.updated_at DESC
		 LIMIT $3`,
		minCorroborations, requireDiversity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list elevation candidates: %w", err)
	}

	var results []domain.CorroborationEvidence
	for rows.Next() {
		var e domain.CorroborationEvidence
		if err := rows.Scan(&e.BeliefID, &e.Content, &e.ContentHash, &e.Status, &e.ConfidenceBoost, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		results = append(results, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		sources, err := s.listSources(ctx, q, results[i].BeliefID)
		if err != nil {
			return nil, err
		}
		results[i].Sources = sources
	}
	return results, nil
}

// FindSimilar returns the beliefs whose stored embedding is nearest to the
// given one by cosine distance.
func (s *CorroborationStore) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]domain.CorroborationCandidate, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := conn(ctx, s.db).Query(ctx,
		`SELECT belief_id, content
		 FROM corroboration_evidence
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar beliefs: %w", err)
	}
	defer rows.Close()

	var candidates []domain.CorroborationCandidate
	for rows.Next() {
		var c domain.CorroborationCandidate
		if err := rows.Scan(&c.BeliefID, &c.Content); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
