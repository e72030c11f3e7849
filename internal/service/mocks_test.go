package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}

// fixedClock is a settable time source.
type fixedClock struct {
	t time.Time
}

func newClock() *fixedClock {
	return &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// passthroughTx runs fn directly. The in-memory stores below have no rollback.
type passthroughTx struct {
	calls int
}

func (t *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// Mock trust edge store

type mockTrustStore struct {
	mu        sync.Mutex
	edges     map[string]domain.TrustEdge
	listCalls int
}

func newMockTrustStore() *mockTrustStore {
	return &mockTrustStore{edges: make(map[string]domain.TrustEdge)}
}

func edgeKey(source, target, dom string) string {
	return source + "|" + target + "|" + dom
}

func (m *mockTrustStore) Upsert(_ context.Context, e *domain.TrustEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edgeKey(e.SourceDID, e.TargetDID, e.Domain)] = *e
	return nil
}

func (m *mockTrustStore) Get(_ context.Context, source, target, dom string, now time.Time) (*domain.TrustEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.edges[edgeKey(source, target, dom)]
	if !ok || e.IsExpired(now) {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (m *mockTrustStore) matches(e domain.TrustEdge, q domain.EdgeQuery) bool {
	if !q.IncludeExpired && e.IsExpired(q.Now) {
		return false
	}
	if q.Domain == nil {
		return true
	}
	return e.Domain == *q.Domain || (q.IncludeGlobal && e.Domain == "")
}

func (m *mockTrustStore) ListFrom(_ context.Context, did string, q domain.EdgeQuery) ([]domain.TrustEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []domain.TrustEdge
	for _, e := range m.edges {
		if e.SourceDID == did && m.matches(e, q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTrustStore) ListTo(_ context.Context, did string, q domain.EdgeQuery) ([]domain.TrustEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrustEdge
	for _, e := range m.edges {
		if e.TargetDID == did && m.matches(e, q) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTrustStore) Delete(_ context.Context, source, target, dom string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := edgeKey(source, target, dom)
	if _, ok := m.edges[k]; !ok {
		return store.ErrNotFound
	}
	delete(m.edges, k)
	return nil
}

func (m *mockTrustStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.edges {
		if e.IsExpired(now) {
			delete(m.edges, k)
			n++
		}
	}
	return n, nil
}

// Mock corroboration store

type mockCorroborationStore struct {
	mu       sync.Mutex
	evidence map[string]*domain.CorroborationEvidence
	similar  []domain.CorroborationCandidate
}

func newMockCorroborationStore() *mockCorroborationStore {
	return &mockCorroborationStore{evidence: make(map[string]*domain.CorroborationEvidence)}
}

func copyEvidence(e *domain.CorroborationEvidence) *domain.CorroborationEvidence {
	out := *e
	out.Sources = append([]domain.SourceInfo(nil), e.Sources...)
	return &out
}

func (m *mockCorroborationStore) CreateEvidence(_ context.Context, e *domain.CorroborationEvidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evidence[e.BeliefID]; ok {
		return store.ErrConflict
	}
	m.evidence[e.BeliefID] = copyEvidence(e)
	return nil
}

func (m *mockCorroborationStore) GetEvidence(_ context.Context, beliefID string) (*domain.CorroborationEvidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evidence[beliefID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyEvidence(e), nil
}

func (m *mockCorroborationStore) LockEvidence(ctx context.Context, beliefID string) (*domain.CorroborationEvidence, error) {
	return m.GetEvidence(ctx, beliefID)
}

func (m *mockCorroborationStore) AddSource(_ context.Context, beliefID string, src *domain.SourceInfo) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evidence[beliefID]
	if !ok {
		return false, store.ErrNotFound
	}
	if e.HasSource(src.SourceID) {
		return false, nil
	}
	e.Sources = append(e.Sources, *src)
	return true, nil
}

func (m *mockCorroborationStore) UpdateStatus(_ context.Context, beliefID string, status domain.CorroborationStatus, boost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evidence[beliefID]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = status
	e.ConfidenceBoost = boost
	return nil
}

func (m *mockCorroborationStore) ListByMinCorroborations(_ context.Context, minCorroborations int, requireDiversity bool, limit int) ([]domain.CorroborationEvidence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy := domain.CorroborationPolicy{RequireDiversity: requireDiversity}
	type scored struct {
		e *domain.CorroborationEvidence
		n int
	}
	var matched []scored
	for _, e := range m.evidence {
		if n := policy.EffectiveCount(e); n >= minCorroborations {
			matched = append(matched, scored{copyEvidence(e), n})
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].n != matched[j].n {
			return matched[i].n > matched[j].n
		}
		return matched[i].e.BeliefID < matched[j].e.BeliefID
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]domain.CorroborationEvidence, 0, len(matched))
	for _, sc := range matched {
		out = append(out, *sc.e)
	}
	return out, nil
}

func (m *mockCorroborationStore) FindSimilar(_ context.Context, _ []float32, limit int) ([]domain.CorroborationCandidate, error) {
	if limit > 0 && len(m.similar) > limit {
		return m.similar[:limit], nil
	}
	return m.similar, nil
}

// Mock commitment store

type mockCommitmentStore struct {
	mu          sync.Mutex
	commitments map[uuid.UUID]*domain.Commitment
	reveals     map[uuid.UUID]domain.Reveal
}

func newMockCommitmentStore() *mockCommitmentStore {
	return &mockCommitmentStore{
		commitments: make(map[uuid.UUID]*domain.Commitment),
		reveals:     make(map[uuid.UUID]domain.Reveal),
	}
}

func (m *mockCommitmentStore) Create(_ context.Context, c *domain.Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.commitments {
		if existing.BeliefID == c.BeliefID && existing.CommitterDID == c.CommitterDID {
			return store.ErrConflict
		}
	}
	c.ID = uuid.New()
	cp := *c
	m.commitments[c.ID] = &cp
	return nil
}

func (m *mockCommitmentStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commitments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCommitmentStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCommitmentStore) LockBelief(context.Context, string) error {
	return nil
}

func (m *mockCommitmentStore) EarliestRevealWindow(_ context.Context, beliefID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var earliest *time.Time
	for _, c := range m.commitments {
		if c.BeliefID != beliefID {
			continue
		}
		if earliest == nil || c.RevealWindowOpens.Before(*earliest) {
			opens := c.RevealWindowOpens
			earliest = &opens
		}
	}
	return earliest, nil
}

func (m *mockCommitmentStore) CreateReveal(_ context.Context, r *domain.Reveal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reveals[r.CommitmentID]; ok {
		return store.ErrConflict
	}
	m.reveals[r.CommitmentID] = *r
	return nil
}

func (m *mockCommitmentStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.CommitmentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commitments[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (m *mockCommitmentStore) ExpireUnrevealed(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.commitments {
		if _, revealed := m.reveals[id]; revealed {
			continue
		}
		if c.Status == domain.CommitmentCommitted && c.RevealWindowCloses.Before(now) {
			c.Status = domain.CommitmentNoReveal
			n++
		}
	}
	return n, nil
}

func (m *mockCommitmentStore) ListByBelief(_ context.Context, beliefID string) ([]domain.Commitment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Commitment
	for _, c := range m.commitments {
		if c.BeliefID == beliefID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCommitmentStore) ListReveals(_ context.Context, beliefID string) ([]domain.Reveal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reveal
	for id, r := range m.reveals {
		if c, ok := m.commitments[id]; ok && c.BeliefID == beliefID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Mock dispute store

type mockDisputeStore struct {
	mu       sync.Mutex
	disputes map[uuid.UUID]*domain.Dispute
	// quality overrides the derived track record for a DID.
	quality map[string]domain.DisputeQuality
}

func newMockDisputeStore() *mockDisputeStore {
	return &mockDisputeStore{
		disputes: make(map[uuid.UUID]*domain.Dispute),
		quality:  make(map[string]domain.DisputeQuality),
	}
}

func (m *mockDisputeStore) Create(_ context.Context, d *domain.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.disputes {
		if existing.BeliefID == d.BeliefID && existing.DisputerDID == d.DisputerDID && existing.Outcome == domain.DisputePending {
			return store.ErrConflict
		}
	}
	d.ID = uuid.New()
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *mockDisputeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDisputeStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	return m.GetByID(ctx, id)
}

func (m *mockDisputeStore) Resolve(_ context.Context, id uuid.UUID, outcome domain.DisputeOutcome, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok || d.Outcome != domain.DisputePending {
		return false, nil
	}
	d.Outcome = outcome
	d.ResolvedAt = &at
	return true, nil
}

func (m *mockDisputeStore) GetQuality(_ context.Context, did string) (domain.DisputeQuality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.quality[did]; ok {
		return q, nil
	}
	q := domain.DisputeQuality{IdentityDID: did}
	for _, d := range m.disputes {
		if d.DisputerDID != did {
			continue
		}
		switch d.Outcome {
		case domain.DisputeWithdrawn:
			continue
		case domain.DisputeUpheld:
			q.DisputesWon++
		case domain.DisputeDismissed:
			q.DisputesLost++
		}
		q.DisputesFiled++
	}
	return q, nil
}

// Mock stake store

type mockStakeStore struct {
	mu        sync.Mutex
	positions map[string]*domain.StakePosition
}

func newMockStakeStore() *mockStakeStore {
	return &mockStakeStore{positions: make(map[string]*domain.StakePosition)}
}

func (m *mockStakeStore) Get(_ context.Context, did string) (*domain.StakePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[did]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStakeStore) Lock(ctx context.Context, did string) (*domain.StakePosition, error) {
	return m.Get(ctx, did)
}

func (m *mockStakeStore) Deposit(_ context.Context, did string, amount float64) (*domain.StakePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[did]
	if !ok {
		p = &domain.StakePosition{IdentityDID: did, Status: domain.StakeActive}
		m.positions[did] = p
	}
	p.Amount += amount
	cp := *p
	return &cp, nil
}

func (m *mockStakeStore) Update(_ context.Context, p *domain.StakePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[p.IdentityDID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	m.positions[p.IdentityDID] = &cp
	return nil
}

// Mock slashing store

type mockSlashingStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.SlashingEvent
}

func newMockSlashingStore() *mockSlashingStore {
	return &mockSlashingStore{events: make(map[uuid.UUID]*domain.SlashingEvent)}
}

func (m *mockSlashingStore) Create(_ context.Context, e *domain.SlashingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *mockSlashingStore) GetByID(_ context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockSlashingStore) LockByID(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSlashingStore) TransitionStatus(_ context.Context, id uuid.UUID, from []domain.SlashingStatus, to domain.SlashingStatus, decidedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if e.Status == f {
			e.Status = to
			e.DecidedAt = decidedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSlashingStore) Appeal(_ context.Context, id uuid.UUID, reason string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.Status != domain.SlashingPending || !e.AppealDeadline.After(now) {
		return false, nil
	}
	e.Status = domain.SlashingAppealed
	e.AppealReason = reason
	return true, nil
}

func (m *mockSlashingStore) ListByValidator(_ context.Context, did string) ([]domain.SlashingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SlashingEvent
	for _, e := range m.events {
		if e.ValidatorDID == did {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockSlashingStore) ListMatured(_ context.Context, now time.Time, limit int) ([]domain.SlashingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SlashingEvent
	for _, e := range m.events {
		if e.Status == domain.SlashingPending && !e.AppealDeadline.After(now) {
			out = append(out, *e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSlashingStore) CountOpen(_ context.Context, did string, exclude uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.events {
		if e.ValidatorDID == did && id != exclude && e.Status.Open() {
			n++
		}
	}
	return n, nil
}

// MockOracle mocks the SimilarityOracle interface.
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	args := m.Called(ctx, a, b)
	return args.Get(0).(float64), args.Error(1)
}

// MockEmbeddingClient mocks the EmbeddingClient interface.
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}
