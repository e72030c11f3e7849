package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/metrics"
	"github.com/Harshitk-cp/concord/internal/store"
	"go.uber.org/zap"
)

const defaultCandidateLimit = 10

var (
	ErrBeliefNotFound   = fmt.Errorf("%w: belief", domain.ErrNotFound)
	ErrEvidenceExists   = fmt.Errorf("%w: belief already registered", domain.ErrConflict)
	ErrSimilarityFailed = errors.New("similarity oracle failed for every candidate")
)

type CorroborationService struct {
	store    domain.CorroborationStore
	tx       domain.Transactor
	oracle   domain.SimilarityOracle
	embedder domain.EmbeddingClient
	policy   domain.CorroborationPolicy
	logger   *zap.Logger
	now      func() time.Time

	CandidateLimit int
}

// NewCorroborationService wires the detector. embedder may be nil, in which
// case beliefs are stored without an embedding and index lookups find nothing.
func NewCorroborationService(
	s domain.CorroborationStore,
	tx domain.Transactor,
	oracle domain.SimilarityOracle,
	embedder domain.EmbeddingClient,
	policy domain.CorroborationPolicy,
	logger *zap.Logger,
) *CorroborationService {
	return &CorroborationService{
		store:          s,
		tx:             tx,
		oracle:         oracle,
		embedder:       embedder,
		policy:         policy,
		logger:         logger,
		now:            time.Now,
		CandidateLimit: defaultCandidateLimit,
	}
}

func (s *CorroborationService) Policy() domain.CorroborationPolicy {
	return s.policy
}

func validateSource(content, sourceID string, sourceType domain.SourceType) error {
	if strings.TrimSpace(content) == "" {
		return domain.NewValidationError("content", "is required")
	}
	if sourceID == "" {
		return domain.NewValidationError("source_id", "is required")
	}
	if !domain.ValidSourceType(string(sourceType)) {
		return domain.NewValidationError("source_type", "must be one of peer, document, observation, tool, user")
	}
	return nil
}

// Register records a new belief with its originating source. A single source
// never counts as corroboration.
func (s *CorroborationService) Register(ctx context.Context, beliefID, content, sourceID string, sourceType domain.SourceType) (*domain.CorroborationEvidence, error) {
	if beliefID == "" {
		return nil, domain.NewValidationError("belief_id", "is required")
	}
	if err := validateSource(content, sourceID, sourceType); err != nil {
		return nil, err
	}

	hash := domain.ContentHash(content)
	ev := &domain.CorroborationEvidence{
		BeliefID:    beliefID,
		Content:     content,
		ContentHash: hash,
		Embedding:   s.embed(ctx, content),
		Sources: []domain.SourceInfo{{
			SourceID:       sourceID,
			SourceType:     sourceType,
			ContentHash:    hash,
			Similarity:     1.0,
			CorroboratedAt: s.now(),
		}},
	}
	s.policy.Recompute(ev)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateEvidence(ctx, ev); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrEvidenceExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("belief registered",
		zap.String("belief_id", beliefID),
		zap.String("source_id", sourceID),
		zap.String("source_type", string(sourceType)))
	return ev, nil
}

// CheckCorroboration scores content against each candidate and, if the best
// match clears the similarity threshold, adds the source to that belief's
// evidence. With nil candidates the nearest beliefs in the embedding index are
// used instead.
func (s *CorroborationService) CheckCorroboration(ctx context.Context, content, sourceID string, sourceType domain.SourceType, candidates []domain.CorroborationCandidate) (*domain.CorroborationResult, error) {
	if err := validateSource(content, sourceID, sourceType); err != nil {
		return nil, err
	}

	if candidates == nil {
		found, err := s.lookupCandidates(ctx, content)
		if err != nil {
			return nil, err
		}
		candidates = found
	}

	var best *domain.CorroborationCandidate
	bestSim := 0.0
	failures := 0
	for i := range candidates {
		c := &candidates[i]
		sim, err := s.oracle.Similarity(ctx, content, c.Content)
		if err != nil {
			failures++
			s.logger.Warn("similarity failed",
				zap.String("belief_id", c.BeliefID),
				zap.Error(err))
			continue
		}
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	if len(candidates) > 0 && failures == len(candidates) {
		return nil, ErrSimilarityFailed
	}

	if best == nil || bestSim < s.policy.SimilarityThreshold {
		return &domain.CorroborationResult{Similarity: bestSim}, nil
	}

	result := &domain.CorroborationResult{
		Corroborated: true,
		BeliefID:     best.BeliefID,
		Similarity:   bestSim,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ev, err := s.store.LockEvidence(ctx, best.BeliefID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrBeliefNotFound
			}
			return err
		}
		result.Evidence = ev

		if ev.HasSource(sourceID) {
			result.Duplicate = true
			return nil
		}

		src := domain.SourceInfo{
			SourceID:       sourceID,
			SourceType:     sourceType,
			ContentHash:    domain.ContentHash(content),
			Similarity:     bestSim,
			CorroboratedAt: s.now(),
		}
		added, err := s.store.AddSource(ctx, ev.BeliefID, &src)
		if err != nil {
			return err
		}
		if !added {
			result.Duplicate = true
			return nil
		}

		ev.Sources = append(ev.Sources, src)
		previous := ev.Status
		s.policy.Recompute(ev)
		if err := s.store.UpdateStatus(ctx, ev.BeliefID, ev.Status, ev.ConfidenceBoost); err != nil {
			return err
		}
		metrics.RecordCorroborationSource(string(ev.Status))

		s.logger.Info("corroborating source added",
			zap.String("belief_id", ev.BeliefID),
			zap.String("source_id", sourceID),
			zap.Float64("similarity", bestSim),
			zap.String("previous_status", string(previous)),
			zap.String("status", string(ev.Status)),
			zap.Float64("confidence_boost", ev.ConfidenceBoost))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CorroborationService) GetEvidence(ctx context.Context, beliefID string) (*domain.CorroborationEvidence, error) {
	ev, err := s.store.GetEvidence(ctx, beliefID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBeliefNotFound
		}
		return nil, err
	}
	return ev, nil
}

// GetElevationCandidates returns evidence whose effective corroboration count
// is at least minSources. Zero or less means the policy threshold.
func (s *CorroborationService) GetElevationCandidates(ctx context.Context, minSources int, limit int) ([]domain.CorroborationEvidence, error) {
	if minSources <= 0 {
		minSources = s.policy.CorroborationThreshold
	}
	out, err := s.store.ListByMinCorroborations(ctx, minSources, s.policy.RequireDiversity, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.CorroborationEvidence{}
	}
	return out, nil
}

func (s *CorroborationService) lookupCandidates(ctx context.Context, content string) ([]domain.CorroborationCandidate, error) {
	emb := s.embed(ctx, content)
	if emb == nil {
		return []domain.CorroborationCandidate{}, nil
	}
	return s.store.FindSimilar(ctx, emb, s.CandidateLimit)
}

func (s *CorroborationService) embed(ctx context.Context, content string) []float32 {
	if s.embedder == nil {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return emb
}
