package domain

import (
	"math"
	"time"
)

// DefaultJudgment is the trust placed in a party's opinions about others when
// nothing else was stated. It has to be earned explicitly.
const DefaultJudgment = 0.1

// TrustEdge is a directed trust statement source -> target, optionally scoped
// to a domain. The empty domain is the global scope.
type TrustEdge struct {
	SourceDID       string     `json:"source_did"`
	TargetDID       string     `json:"target_did"`
	Domain          string     `json:"domain,omitempty"`
	Competence      float64    `json:"competence"`
	Integrity       float64    `json:"integrity"`
	Confidentiality float64    `json:"confidentiality"`
	Judgment        float64    `json:"judgment"`
	CanDelegate     bool       `json:"can_delegate"`
	DelegationDepth uint32     `json:"delegation_depth"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewTrustEdge returns an edge with the documented defaults: judgment 0.1,
// no delegation.
func NewTrustEdge(source, target string, competence, integrity, confidentiality float64) *TrustEdge {
	return &TrustEdge{
		SourceDID:       source,
		TargetDID:       target,
		Competence:      competence,
		Integrity:       integrity,
		Confidentiality: confidentiality,
		Judgment:        DefaultJudgment,
	}
}

// Validate rejects self-trust and scores outside [0,1].
func (e *TrustEdge) Validate() error {
	if e.SourceDID == "" {
		return NewValidationError("source_did", "required")
	}
	if e.TargetDID == "" {
		return NewValidationError("target_did", "required")
	}
	if e.SourceDID == e.TargetDID {
		return NewValidationError("target_did", "self-trust is not allowed")
	}
	scores := []struct {
		field string
		v     float64
	}{
		{"competence", e.Competence},
		{"integrity", e.Integrity},
		{"confidentiality", e.Confidentiality},
		{"judgment", e.Judgment},
	}
	for _, s := range scores {
		if math.IsNaN(s.v) || s.v < 0 || s.v > 1 {
			return NewValidationError(s.field, "must be within [0,1]")
		}
	}
	return nil
}

// OverallTrust is the geometric mean of the four dimensions.
func (e *TrustEdge) OverallTrust() float64 {
	product := e.Competence * e.Integrity * e.Confidentiality * e.Judgment
	if product <= 0 {
		return 0
	}
	return math.Pow(product, 0.25)
}

// IsExpired reports whether the edge has passed its expiry at now.
func (e *TrustEdge) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// ComputeDelegatedTrust derives a -> c trust from a -> b and b -> c. It
// returns nil when a -> b does not permit delegation. Each dimension is capped
// by the weaker link and discounted by a's judgment of b, so judgment compounds
// across hops.
func ComputeDelegatedTrust(ab, bc *TrustEdge) *TrustEdge {
	if ab == nil || bc == nil || !ab.CanDelegate {
		return nil
	}

	w := ab.Judgment
	out := &TrustEdge{
		SourceDID:       ab.SourceDID,
		TargetDID:       bc.TargetDID,
		Domain:          ab.Domain,
		Competence:      math.Min(ab.Competence, bc.Competence) * w,
		Integrity:       math.Min(ab.Integrity, bc.Integrity) * w,
		Confidentiality: math.Min(ab.Confidentiality, bc.Confidentiality) * w,
		Judgment:        math.Min(ab.Judgment, bc.Judgment) * w,
		CanDelegate:     bc.CanDelegate,
		ExpiresAt:       earliest(ab.ExpiresAt, bc.ExpiresAt),
	}
	if ab.DelegationDepth > 0 {
		out.DelegationDepth = ab.DelegationDepth - 1
	}
	return out
}

// MaxPerDimension merges two derived edges by taking the stronger value of
// each dimension independently.
func MaxPerDimension(a, b *TrustEdge) *TrustEdge {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := *a
	out.Competence = math.Max(a.Competence, b.Competence)
	out.Integrity = math.Max(a.Integrity, b.Integrity)
	out.Confidentiality = math.Max(a.Confidentiality, b.Confidentiality)
	out.Judgment = math.Max(a.Judgment, b.Judgment)
	out.CanDelegate = a.CanDelegate || b.CanDelegate
	if b.DelegationDepth > out.DelegationDepth {
		out.DelegationDepth = b.DelegationDepth
	}
	return &out
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Before(*b):
		return a
	default:
		return b
	}
}

// EdgeQuery filters edge listings.
type EdgeQuery struct {
	// Domain restricts results to one scope. Nil means every scope.
	Domain *string
	// IncludeGlobal also returns global edges when Domain is set.
	IncludeGlobal  bool
	IncludeExpired bool
	Now            time.Time
}

// TransitiveTrustResult is the outcome of a trust traversal.
type TransitiveTrustResult struct {
	Edge            *TrustEdge `json:"edge"`
	Direct          bool       `json:"direct"`
	OverallTrust    float64    `json:"overall_trust"`
	PathsConsidered int        `json:"paths_considered"`
	BestPath        []string   `json:"best_path,omitempty"`
}
