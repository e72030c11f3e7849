package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupCorroborationTest(oracle domain.SimilarityOracle) (*CorroborationService, *mockCorroborationStore) {
	s := newMockCorroborationStore()
	svc := NewCorroborationService(s, &passthroughTx{}, oracle, nil, domain.DefaultCorroborationPolicy(), testLogger())
	svc.now = newClock().Now
	return svc, s
}

// staticOracle scores every pair the same.
type staticOracle float64

func (o staticOracle) Similarity(context.Context, string, string) (float64, error) {
	return float64(o), nil
}

func TestCorroborationService_Register(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(1))
	ctx := context.Background()

	ev, err := svc.Register(ctx, "belief-1", "water boils at 100C at sea level", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUncorroborated, ev.Status)
	assert.Equal(t, 0.0, ev.ConfidenceBoost)
	assert.Equal(t, 0, ev.CorroborationCount())
	require.Len(t, ev.Sources, 1)
	assert.Equal(t, 1.0, ev.Sources[0].Similarity)
	assert.Equal(t, domain.ContentHash("water boils at 100C at sea level"), ev.ContentHash)
	assert.Len(t, s.evidence, 1)

	_, err = svc.Register(ctx, "belief-1", "again", "node-b", domain.SourceTypePeer)
	assert.ErrorIs(t, err, ErrEvidenceExists)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

type inTxKey struct{}

// scopedTx marks the context handed to fn so stores can tell they run inside it.
type scopedTx struct {
	calls int
}

func (t *scopedTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

type txRecordingCorroborationStore struct {
	*mockCorroborationStore
	createdInTx []bool
}

func (s *txRecordingCorroborationStore) CreateEvidence(ctx context.Context, e *domain.CorroborationEvidence) error {
	_, inTx := ctx.Value(inTxKey{}).(bool)
	s.createdInTx = append(s.createdInTx, inTx)
	return s.mockCorroborationStore.CreateEvidence(ctx, e)
}

func TestCorroborationService_Register_Transactional(t *testing.T) {
	st := &txRecordingCorroborationStore{mockCorroborationStore: newMockCorroborationStore()}
	tx := &scopedTx{}
	svc := NewCorroborationService(st, tx, staticOracle(1), nil, domain.DefaultCorroborationPolicy(), testLogger())
	ctx := context.Background()

	_, err := svc.Register(ctx, "belief-1", "claim", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, []bool{true}, st.createdInTx)

	_, err = svc.Register(ctx, "belief-1", "claim", "node-b", domain.SourceTypePeer)
	assert.ErrorIs(t, err, ErrEvidenceExists)
	assert.Equal(t, 2, tx.calls)
}

func TestCorroborationService_Register_Validation(t *testing.T) {
	svc, _ := setupCorroborationTest(staticOracle(1))
	ctx := context.Background()

	tests := []struct {
		name       string
		beliefID   string
		content    string
		sourceID   string
		sourceType domain.SourceType
		field      string
	}{
		{"missing belief", "", "x", "s", domain.SourceTypePeer, "belief_id"},
		{"blank content", "b", "   ", "s", domain.SourceTypePeer, "content"},
		{"missing source", "b", "x", "", domain.SourceTypePeer, "source_id"},
		{"unknown type", "b", "x", "s", "rumor", "source_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.beliefID, tt.content, tt.sourceID, tt.sourceType)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCorroborationService_CheckCorroboration_BelowThreshold(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(0.5))
	ctx := context.Background()

	_, err := svc.Register(ctx, "belief-1", "claim", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)

	res, err := svc.CheckCorroboration(ctx, "other claim", "node-b", domain.SourceTypeDocument,
		[]domain.CorroborationCandidate{{BeliefID: "belief-1", Content: "claim"}})
	require.NoError(t, err)
	assert.False(t, res.Corroborated)
	assert.Equal(t, 0.5, res.Similarity)
	assert.Len(t, s.evidence["belief-1"].Sources, 1)
}

func TestCorroborationService_CheckCorroboration_PicksBestCandidate(t *testing.T) {
	oracle := new(MockOracle)
	svc, s := setupCorroborationTest(oracle)
	ctx := context.Background()

	_, err := svc.Register(ctx, "belief-1", "the sky is green", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)
	_, err = svc.Register(ctx, "belief-2", "the sky is blue", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)

	oracle.On("Similarity", mock.Anything, "sky is blue", "the sky is green").Return(0.86, nil)
	oracle.On("Similarity", mock.Anything, "sky is blue", "the sky is blue").Return(0.97, nil)

	res, err := svc.CheckCorroboration(ctx, "sky is blue", "node-b", domain.SourceTypeObservation, []domain.CorroborationCandidate{
		{BeliefID: "belief-1", Content: "the sky is green"},
		{BeliefID: "belief-2", Content: "the sky is blue"},
	})
	require.NoError(t, err)
	assert.True(t, res.Corroborated)
	assert.Equal(t, "belief-2", res.BeliefID)
	assert.Equal(t, 0.97, res.Similarity)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.StatusPartiallyCorroborated, res.Evidence.Status)
	assert.InDelta(t, 0.15, res.Evidence.ConfidenceBoost, 1e-9)

	stored := s.evidence["belief-2"]
	require.Len(t, stored.Sources, 2)
	assert.Equal(t, "node-b", stored.Sources[1].SourceID)
	assert.Equal(t, domain.StatusPartiallyCorroborated, stored.Status)
	assert.Len(t, s.evidence["belief-1"].Sources, 1)
	oracle.AssertExpectations(t)
}

func TestCorroborationService_CheckCorroboration_DuplicateSource(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(0.95))
	ctx := context.Background()
	candidates := []domain.CorroborationCandidate{{BeliefID: "belief-1", Content: "claim"}}

	_, err := svc.Register(ctx, "belief-1", "claim", "node-a", domain.SourceTypePeer)
	require.NoError(t, err)

	// The originating source cannot confirm itself.
	res, err := svc.CheckCorroboration(ctx, "claim", "node-a", domain.SourceTypePeer, candidates)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, s.evidence["belief-1"].Sources, 1)

	res, err = svc.CheckCorroboration(ctx, "claim", "node-b", domain.SourceTypeTool, candidates)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = svc.CheckCorroboration(ctx, "claim", "node-b", domain.SourceTypeTool, candidates)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, s.evidence["belief-1"].Sources, 2)
}

func TestCorroborationService_StatusProgression(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(0.99))
	ctx := context.Background()
	candidates := []domain.CorroborationCandidate{{BeliefID: "belief-1", Content: "claim"}}

	_, err := svc.Register(ctx, "belief-1", "claim", "origin", domain.SourceTypePeer)
	require.NoError(t, err)

	confirm := []struct {
		source string
		typ    domain.SourceType
		want   domain.CorroborationStatus
	}{
		{"s1", domain.SourceTypePeer, domain.StatusPartiallyCorroborated},
		// Same type again adds a source but not diversity.
		{"s2", domain.SourceTypePeer, domain.StatusPartiallyCorroborated},
		{"s3", domain.SourceTypeDocument, domain.StatusPartiallyCorroborated},
		{"s4", domain.SourceTypeObservation, domain.StatusCorroborated},
		{"s5", domain.SourceTypeTool, domain.StatusCorroborated},
		{"s6", domain.SourceTypeUser, domain.StatusCorroborated},
	}
	prevBoost := 0.0
	for _, c := range confirm {
		res, err := svc.CheckCorroboration(ctx, "claim", c.source, c.typ, candidates)
		require.NoError(t, err)
		assert.Equal(t, c.want, res.Evidence.Status, "after %s", c.source)
		assert.GreaterOrEqual(t, res.Evidence.ConfidenceBoost, prevBoost)
		assert.LessOrEqual(t, res.Evidence.ConfidenceBoost, svc.Policy().MaxBoost)
		prevBoost = res.Evidence.ConfidenceBoost
	}
	assert.Len(t, s.evidence["belief-1"].Sources, 7)
	assert.Equal(t, domain.StatusCorroborated, s.evidence["belief-1"].Status)
}

func TestCorroborationService_CheckCorroboration_OracleFailures(t *testing.T) {
	oracle := new(MockOracle)
	svc, _ := setupCorroborationTest(oracle)
	ctx := context.Background()

	_, err := svc.Register(ctx, "belief-1", "claim one", "origin", domain.SourceTypePeer)
	require.NoError(t, err)

	oracle.On("Similarity", mock.Anything, "claim", "claim one").Return(0.0, errors.New("provider down")).Once()
	oracle.On("Similarity", mock.Anything, "claim", "claim two").Return(0.0, errors.New("provider down")).Once()

	_, err = svc.CheckCorroboration(ctx, "claim", "node-b", domain.SourceTypePeer, []domain.CorroborationCandidate{
		{BeliefID: "belief-1", Content: "claim one"},
		{BeliefID: "belief-2", Content: "claim two"},
	})
	assert.ErrorIs(t, err, ErrSimilarityFailed)

	// One failure among several candidates is skipped.
	oracle.On("Similarity", mock.Anything, "claim", "claim one").Return(0.9, nil).Once()
	oracle.On("Similarity", mock.Anything, "claim", "claim two").Return(0.0, errors.New("provider down")).Once()

	res, err := svc.CheckCorroboration(ctx, "claim", "node-b", domain.SourceTypePeer, []domain.CorroborationCandidate{
		{BeliefID: "belief-1", Content: "claim one"},
		{BeliefID: "belief-2", Content: "claim two"},
	})
	require.NoError(t, err)
	assert.True(t, res.Corroborated)
	assert.Equal(t, "belief-1", res.BeliefID)
	oracle.AssertExpectations(t)
}

func TestCorroborationService_CheckCorroboration_UnknownBelief(t *testing.T) {
	svc, _ := setupCorroborationTest(staticOracle(1))

	_, err := svc.CheckCorroboration(context.Background(), "claim", "node-b", domain.SourceTypePeer,
		[]domain.CorroborationCandidate{{BeliefID: "ghost", Content: "claim"}})
	assert.ErrorIs(t, err, ErrBeliefNotFound)
}

func TestCorroborationService_CheckCorroboration_IndexLookup(t *testing.T) {
	s := newMockCorroborationStore()
	embedder := new(MockEmbeddingClient)
	embedder.On("Embed", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	svc := NewCorroborationService(s, &passthroughTx{}, similarity.Lexical{}, embedder, domain.DefaultCorroborationPolicy(), testLogger())
	ctx := context.Background()

	ev, err := svc.Register(ctx, "belief-1", "the river floods every spring", "origin", domain.SourceTypePeer)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, ev.Embedding)

	s.similar = []domain.CorroborationCandidate{{BeliefID: "belief-1", Content: "the river floods every spring"}}

	res, err := svc.CheckCorroboration(ctx, "The river floods every spring", "node-b", domain.SourceTypeDocument, nil)
	require.NoError(t, err)
	assert.True(t, res.Corroborated)
	assert.Equal(t, "belief-1", res.BeliefID)
	embedder.AssertNumberOfCalls(t, "Embed", 2)
}

func TestCorroborationService_CheckCorroboration_NoEmbedder(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(1))
	s.similar = []domain.CorroborationCandidate{{BeliefID: "belief-1", Content: "x"}}

	res, err := svc.CheckCorroboration(context.Background(), "claim", "node-b", domain.SourceTypePeer, nil)
	require.NoError(t, err)
	assert.False(t, res.Corroborated)
}

func TestCorroborationService_GetElevationCandidates(t *testing.T) {
	svc, s := setupCorroborationTest(staticOracle(1))
	ctx := context.Background()

	diverse := &domain.CorroborationEvidence{BeliefID: "diverse", Sources: []domain.SourceInfo{
		{SourceID: "o", SourceType: domain.SourceTypePeer},
		{SourceID: "a", SourceType: domain.SourceTypePeer},
		{SourceID: "b", SourceType: domain.SourceTypeDocument},
		{SourceID: "c", SourceType: domain.SourceTypeTool},
	}}
	echo := &domain.CorroborationEvidence{BeliefID: "echo", Sources: []domain.SourceInfo{
		{SourceID: "o", SourceType: domain.SourceTypePeer},
		{SourceID: "a", SourceType: domain.SourceTypePeer},
		{SourceID: "b", SourceType: domain.SourceTypePeer},
		{SourceID: "c", SourceType: domain.SourceTypePeer},
	}}
	require.NoError(t, s.CreateEvidence(ctx, diverse))
	require.NoError(t, s.CreateEvidence(ctx, echo))

	got, err := svc.GetElevationCandidates(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "diverse", got[0].BeliefID)

	got, err = svc.GetElevationCandidates(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func sourcesOf(types ...domain.SourceType) []domain.SourceInfo {
	out := make([]domain.SourceInfo, len(types))
	for i, st := range types {
		out[i] = domain.SourceInfo{SourceID: fmt.Sprintf("src-%d", i), SourceType: st}
	}
	return out
}

func TestCorroborationService_GetElevationCandidates_LimitAfterDiversity(t *testing.T) {
	s := newMockCorroborationStore()
	ctx := context.Background()

	peer, doc, tool, obs := domain.SourceTypePeer, domain.SourceTypeDocument, domain.SourceTypeTool, domain.SourceTypeObservation
	require.NoError(t, s.CreateEvidence(ctx, &domain.CorroborationEvidence{
		BeliefID: "flooded",
		Sources:  sourcesOf(peer, peer, peer, peer, peer, peer),
	}))
	require.NoError(t, s.CreateEvidence(ctx, &domain.CorroborationEvidence{
		BeliefID: "diverse",
		Sources:  sourcesOf(peer, doc, tool, obs),
	}))

	svc := NewCorroborationService(s, &passthroughTx{}, staticOracle(1), nil, domain.DefaultCorroborationPolicy(), testLogger())

	// Five same-type confirmations count once, so only the diverse belief
	// qualifies even though it has fewer sources.
	got, err := svc.GetElevationCandidates(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "diverse", got[0].BeliefID)

	got, err = svc.GetElevationCandidates(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "diverse", got[0].BeliefID)
	assert.Equal(t, "flooded", got[1].BeliefID)

	policy := domain.DefaultCorroborationPolicy()
	policy.RequireDiversity = false
	svc = NewCorroborationService(s, &passthroughTx{}, staticOracle(1), nil, policy, testLogger())
	got, err = svc.GetElevationCandidates(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "flooded", got[0].BeliefID)
}

func TestCorroborationService_GetEvidence(t *testing.T) {
	svc, _ := setupCorroborationTest(staticOracle(1))

	_, err := svc.GetEvidence(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBeliefNotFound)
}
