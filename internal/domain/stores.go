package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transactor runs fn inside one storage transaction. Stores called with the
// ctx handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type IdentityStore interface {
	Create(ctx context.Context, id *Identity) error
	GetByDID(ctx context.Context, did string) (*Identity, error)
}

type TrustEdgeStore interface {
	Upsert(ctx context.Context, e *TrustEdge) error
	// Get returns the edge keyed by (source, target, domain) unless it has
	// expired at now.
	Get(ctx context.Context, source, target, domain string, now time.Time) (*TrustEdge, error)
	ListFrom(ctx context.Context, did string, q EdgeQuery) ([]TrustEdge, error)
	ListTo(ctx context.Context, did string, q EdgeQuery) ([]TrustEdge, error)
	Delete(ctx context.Context, source, target, domain string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CorroborationStore interface {
	// CreateEvidence persists the evidence row and its originating source.
	CreateEvidence(ctx context.Context, e *CorroborationEvidence) error
	GetEvidence(ctx context.Context, beliefID string) (*CorroborationEvidence, error)
	// LockEvidence is GetEvidence with a row lock held until the transaction ends.
	LockEvidence(ctx context.Context, beliefID string) (*CorroborationEvidence, error)
	// AddSource appends a source; it reports false when source_id is already present.
	AddSource(ctx context.Context, beliefID string, src *SourceInfo) (bool, error)
	UpdateStatus(ctx context.Context, beliefID string, status CorroborationStatus, boost float64) error
	// ListByMinCorroborations filters and orders by the effective count: the
	// confirming sources, capped by their distinct types when requireDiversity
	// is set. The limit applies after that filter.
	ListByMinCorroborations(ctx context.Context, minCorroborations int, requireDiversity bool, limit int) ([]CorroborationEvidence, error)
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]CorroborationCandidate, error)
}

type CommitmentStore interface {
	Create(ctx context.Context, c *Commitment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Commitment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Commitment, error)
	// LockBelief serializes commitments on one belief until the surrounding
	// transaction ends.
	LockBelief(ctx context.Context, beliefID string) error
	// EarliestRevealWindow returns the first reveal_window_opens among the
	// belief's commitments, or nil when there are none.
	EarliestRevealWindow(ctx context.Context, beliefID string) (*time.Time, error)
	CreateReveal(ctx context.Context, r *Reveal) error
	// TransitionStatus moves a commitment from one status to another and reports
	// whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to CommitmentStatus) (bool, error)
	ExpireUnrevealed(ctx context.Context, now time.Time) (int64, error)
	ListByBelief(ctx context.Context, beliefID string) ([]Commitment, error)
	ListReveals(ctx context.Context, beliefID string) ([]Reveal, error)
}

type DisputeStore interface {
	Create(ctx context.Context, d *Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	LockByID(ctx context.Context, id uuid.UUID) (*Dispute, error)
	// Resolve closes a pending dispute and reports whether a row changed.
	Resolve(ctx context.Context, id uuid.UUID, outcome DisputeOutcome, at time.Time) (bool, error)
	GetQuality(ctx context.Context, did string) (DisputeQuality, error)
}

type StakeStore interface {
	Get(ctx context.Context, did string) (*StakePosition, error)
	Lock(ctx context.Context, did string) (*StakePosition, error)
	Deposit(ctx context.Context, did string, amount float64) (*StakePosition, error)
	Update(ctx context.Context, p *StakePosition) error
}

type SlashingStore interface {
	Create(ctx context.Context, e *SlashingEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*SlashingEvent, error)
	LockByID(ctx context.Context, id uuid.UUID) (*SlashingEvent, error)
	// TransitionStatus moves the event to `to` only if its current status is one
	// of `from`; it reports whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []SlashingStatus, to SlashingStatus, decidedAt *time.Time) (bool, error)
	// Appeal moves a pending event to appealed if the deadline has not passed.
	Appeal(ctx context.Context, id uuid.UUID, reason string, now time.Time) (bool, error)
	ListByValidator(ctx context.Context, did string) ([]SlashingEvent, error)
	ListMatured(ctx context.Context, now time.Time, limit int) ([]SlashingEvent, error)
	CountOpen(ctx context.Context, did string, exclude uuid.UUID) (int, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SimilarityOracle scores how semantically close two texts are, in [0,1].
type SimilarityOracle interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}
