package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/metrics"
	"github.com/Harshitk-cp/concord/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultTrustMaxHops = 3
	// MaxTrustQueueSize bounds the traversal frontier in dense graphs.
	MaxTrustQueueSize = 10000
)

var (
	ErrTrustEdgeNotFound  = fmt.Errorf("%w: trust edge", domain.ErrNotFound)
	ErrNoTrustPath        = fmt.Errorf("%w: no trust path", domain.ErrNotFound)
	ErrTrustGraphTooLarge = errors.New("trust graph too large: resource limits exceeded")
)

// TransitiveOpts controls a trust traversal.
type TransitiveOpts struct {
	Domain            string
	MaxHops           int
	RespectDelegation bool
}

type TrustService struct {
	store  domain.TrustEdgeStore
	logger *zap.Logger
	now    func() time.Time

	MaxHops      int
	MaxQueueSize int
}

func NewTrustService(s domain.TrustEdgeStore, logger *zap.Logger) *TrustService {
	return &TrustService{
		store:        s,
		logger:       logger,
		now:          time.Now,
		MaxHops:      DefaultTrustMaxHops,
		MaxQueueSize: MaxTrustQueueSize,
	}
}

// AddEdge validates and upserts an edge. Repeating the call with the same key
// overwrites the previous scores.
func (s *TrustService) AddEdge(ctx context.Context, e *domain.TrustEdge) (*domain.TrustEdge, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.ExpiresAt != nil && e.IsExpired(s.now()) {
		return nil, domain.NewValidationError("expires_at", "must be in the future")
	}

	if err := s.store.Upsert(ctx, e); err != nil {
		return nil, err
	}
	metrics.RecordTrustEdgeUpserted()

	s.logger.Info("trust edge upserted",
		zap.String("source_did", e.SourceDID),
		zap.String("target_did", e.TargetDID),
		zap.String("domain", e.Domain),
		zap.Float64("overall_trust", e.OverallTrust()),
		zap.Bool("can_delegate", e.CanDelegate))
	return e, nil
}

func (s *TrustService) GetEdge(ctx context.Context, source, target, dom string) (*domain.TrustEdge, error) {
	e, err := s.store.Get(ctx, source, target, dom, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTrustEdgeNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *TrustService) GetEdgesFrom(ctx context.Context, did string, dom *string, includeExpired bool) ([]domain.TrustEdge, error) {
	edges, err := s.store.ListFrom(ctx, did, domain.EdgeQuery{Domain: dom, IncludeExpired: includeExpired, Now: s.now()})
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []domain.TrustEdge{}
	}
	return edges, nil
}

func (s *TrustService) GetEdgesTo(ctx context.Context, did string, dom *string, includeExpired bool) ([]domain.TrustEdge, error) {
	edges, err := s.store.ListTo(ctx, did, domain.EdgeQuery{Domain: dom, IncludeExpired: includeExpired, Now: s.now()})
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []domain.TrustEdge{}
	}
	return edges, nil
}

func (s *TrustService) DeleteEdge(ctx context.Context, source, target, dom string) error {
	if err := s.store.Delete(ctx, source, target, dom); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTrustEdgeNotFound
		}
		return err
	}
	s.logger.Info("trust edge deleted",
		zap.String("source_did", source),
		zap.String("target_did", target),
		zap.String("domain", dom))
	return nil
}

func (s *TrustService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

// ComputeTransitiveTrust returns how much source trusts target. A direct edge
// always wins. Otherwise paths of up to MaxHops edges are explored breadth
// first; every hop past the first must be permitted by the previous hop's
// can_delegate flag and, when RespectDelegation is set, by the delegation depth
// of the edges already walked. When several paths reach target, each dimension
// takes its maximum across paths.
//
// On ErrTrustGraphTooLarge the best result found so far is returned alongside
// the error.
func (s *TrustService) ComputeTransitiveTrust(ctx context.Context, source, target string, opts TransitiveOpts) (*domain.TransitiveTrustResult, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveTrustComputation(time.Since(start).Seconds())
	}()

	if source == "" || target == "" {
		return nil, domain.NewValidationError("target_did", "source and target are required")
	}
	if source == target {
		return nil, domain.NewValidationError("target_did", "self-trust is not allowed")
	}

	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = s.MaxHops
	}
	now := s.now()

	direct, err := s.lookupDirect(ctx, source, target, opts.Domain, now)
	if err != nil {
		return nil, err
	}
	if direct != nil {
		return &domain.TransitiveTrustResult{
			Edge:            direct,
			Direct:          true,
			OverallTrust:    direct.OverallTrust(),
			PathsConsidered: 1,
			BestPath:        []string{source, target},
		}, nil
	}

	dom := opts.Domain
	cache := make(map[string][]domain.TrustEdge)
	neighbors := func(did string) ([]domain.TrustEdge, error) {
		if edges, ok := cache[did]; ok {
			return edges, nil
		}
		edges, err := s.store.ListFrom(ctx, did, domain.EdgeQuery{Domain: &dom, IncludeGlobal: true, Now: now})
		if err != nil {
			return nil, err
		}
		cache[did] = edges
		return edges, nil
	}

	type searchState struct {
		did  string
		edge *domain.TrustEdge
		path []string
		// budget is the number of further hops delegation still allows; -1 is
		// unlimited.
		budget int
	}

	first, err := neighbors(source)
	if err != nil {
		return nil, err
	}
	var queue []searchState
	for i := range first {
		e := first[i]
		if e.TargetDID == target {
			continue
		}
		queue = append(queue, searchState{
			did:    e.TargetDID,
			edge:   &e,
			path:   []string{source, e.TargetDID},
			budget: initialBudget(&e, opts.RespectDelegation),
		})
	}

	var best *domain.TrustEdge
	var bestPath []string
	bestOverall := -1.0
	paths := 0

	result := func() *domain.TransitiveTrustResult {
		if best == nil {
			return nil
		}
		best.SourceDID = source
		best.TargetDID = target
		return &domain.TransitiveTrustResult{
			Edge:            best,
			OverallTrust:    best.OverallTrust(),
			PathsConsidered: paths,
			BestPath:        bestPath,
		}
	}

	for len(queue) > 0 {
		if len(queue) > s.MaxQueueSize {
			s.logger.Warn("trust traversal exceeded queue limit",
				zap.String("source_did", source),
				zap.String("target_did", target),
				zap.Int("queue", len(queue)))
			return result(), ErrTrustGraphTooLarge
		}

		current := queue[0]
		queue = queue[1:]

		if len(current.path)-1 >= maxHops || current.budget == 0 || !current.edge.CanDelegate {
			continue
		}

		next, err := neighbors(current.did)
		if err != nil {
			return nil, err
		}
		for i := range next {
			e := next[i]
			if containsDID(current.path, e.TargetDID) {
				continue
			}
			derived := domain.ComputeDelegatedTrust(current.edge, &e)
			if derived == nil {
				continue
			}

			newPath := make([]string, len(current.path)+1)
			copy(newPath, current.path)
			newPath[len(current.path)] = e.TargetDID

			if e.TargetDID == target {
				paths++
				best = domain.MaxPerDimension(best, derived)
				if o := derived.OverallTrust(); o > bestOverall {
					bestOverall = o
					bestPath = newPath
				}
				continue
			}

			queue = append(queue, searchState{
				did:    e.TargetDID,
				edge:   derived,
				path:   newPath,
				budget: nextBudget(current.budget, &e, opts.RespectDelegation),
			})
		}
	}

	res := result()
	if res == nil {
		return nil, ErrNoTrustPath
	}
	return res, nil
}

// lookupDirect tries the exact domain first and falls back to the global
// scope.
func (s *TrustService) lookupDirect(ctx context.Context, source, target, dom string, now time.Time) (*domain.TrustEdge, error) {
	e, err := s.store.Get(ctx, source, target, dom, now)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if dom == "" {
		return nil, nil
	}
	e, err = s.store.Get(ctx, source, target, "", now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func initialBudget(e *domain.TrustEdge, respect bool) int {
	if !respect || e.DelegationDepth == 0 {
		return -1
	}
	return int(e.DelegationDepth)
}

func nextBudget(current int, e *domain.TrustEdge, respect bool) int {
	if !respect {
		return -1
	}
	b := current
	if b > 0 {
		b--
	}
	if d := int(e.DelegationDepth); d > 0 && (b < 0 || d < b) {
		b = d
	}
	return b
}

func containsDID(path []string, did string) bool {
	for _, p := range path {
		if p == did {
			return true
		}
	}
	return false
}
