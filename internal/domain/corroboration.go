package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"
)

type CorroborationStatus string

const (
	StatusUncorroborated        CorroborationStatus = "uncorroborated"
	StatusPartiallyCorroborated CorroborationStatus = "partially_corroborated"
	StatusCorroborated          CorroborationStatus = "corroborated"
	StatusHighlyCorroborated    CorroborationStatus = "highly_corroborated"
)

// SourceType classifies where a confirming source came from. Diversity of
// source types is what makes corroboration independent.
type SourceType string

const (
	SourceTypePeer        SourceType = "peer"
	SourceTypeDocument    SourceType = "document"
	SourceTypeObservation SourceType = "observation"
	SourceTypeTool        SourceType = "tool"
	SourceTypeUser        SourceType = "user"
)

func ValidSourceType(s string) bool {
	switch SourceType(s) {
	case SourceTypePeer, SourceTypeDocument, SourceTypeObservation, SourceTypeTool, SourceTypeUser:
		return true
	}
	return false
}

type SourceInfo struct {
	SourceID       string     `json:"source_id"`
	SourceType     SourceType `json:"source_type"`
	ContentHash    string     `json:"content_hash"`
	Similarity     float64    `json:"similarity"`
	CorroboratedAt time.Time  `json:"corroborated_at"`
}

// CorroborationEvidence tracks the sources behind one belief. Sources[0] is
// the originating source; every later entry is an independent confirmation.
type CorroborationEvidence struct {
	BeliefID        string              `json:"belief_id"`
	Content         string              `json:"-"`
	ContentHash     string              `json:"content_hash"`
	Embedding       []float32           `json:"-"`
	Sources         []SourceInfo        `json:"sources"`
	Status          CorroborationStatus `json:"status"`
	ConfidenceBoost float64             `json:"confidence_boost"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (e *CorroborationEvidence) SourceCount() int {
	return len(e.Sources)
}

// CorroborationCount is the number of confirming sources, excluding the origin.
func (e *CorroborationEvidence) CorroborationCount() int {
	if len(e.Sources) == 0 {
		return 0
	}
	return len(e.Sources) - 1
}

// UniqueSourceTypes counts distinct types among confirming sources.
func (e *CorroborationEvidence) UniqueSourceTypes() int {
	seen := make(map[SourceType]struct{})
	for i, s := range e.Sources {
		if i == 0 {
			continue
		}
		seen[s.SourceType] = struct{}{}
	}
	return len(seen)
}

func (e *CorroborationEvidence) AverageSimilarity() float64 {
	n := e.CorroborationCount()
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range e.Sources[1:] {
		sum += s.Similarity
	}
	return sum / float64(n)
}

func (e *CorroborationEvidence) HasSource(sourceID string) bool {
	for _, s := range e.Sources {
		if s.SourceID == sourceID {
			return true
		}
	}
	return false
}

// CorroborationPolicy holds the tunables that map sources to a status and a
// confidence boost.
type CorroborationPolicy struct {
	SimilarityThreshold    float64
	CorroborationThreshold int
	RequireDiversity       bool
	BoostBase              float64
	BoostDecay             float64
	MaxBoost               float64
}

func DefaultCorroborationPolicy() CorroborationPolicy {
	return CorroborationPolicy{
		SimilarityThreshold:    0.85,
		CorroborationThreshold: 3,
		RequireDiversity:       true,
		BoostBase:              0.3,
		BoostDecay:             0.5,
		MaxBoost:               0.25,
	}
}

// EffectiveCount is the corroboration count used for status, capped by the
// number of distinct source types when diversity is required.
func (p CorroborationPolicy) EffectiveCount(e *CorroborationEvidence) int {
	n := e.CorroborationCount()
	if p.RequireDiversity {
		if u := e.UniqueSourceTypes(); u < n {
			n = u
		}
	}
	return n
}

func (p CorroborationPolicy) Status(count int) CorroborationStatus {
	threshold := p.CorroborationThreshold
	if threshold <= 0 {
		threshold = 1
	}
	switch {
	case count <= 0:
		return StatusUncorroborated
	case count < threshold:
		return StatusPartiallyCorroborated
	case count < 2*threshold:
		return StatusCorroborated
	default:
		return StatusHighlyCorroborated
	}
}

// ConfidenceBoost is min(base * (1 - decay^count), max).
func (p CorroborationPolicy) ConfidenceBoost(count int) float64 {
	if count <= 0 {
		return 0
	}
	boost := p.BoostBase * (1 - math.Pow(p.BoostDecay, float64(count)))
	return math.Min(boost, p.MaxBoost)
}

// Recompute refreshes the derived status and boost from the source list.
func (p CorroborationPolicy) Recompute(e *CorroborationEvidence) {
	n := p.EffectiveCount(e)
	e.Status = p.Status(n)
	e.ConfidenceBoost = p.ConfidenceBoost(n)
}

// CorroborationCandidate is an existing belief a new claim may confirm.
type CorroborationCandidate struct {
	BeliefID string `json:"belief_id"`
	Content  string `json:"content"`
}

type CorroborationResult struct {
	Corroborated bool                   `json:"corroborated"`
	BeliefID     string                 `json:"belief_id,omitempty"`
	Similarity   float64                `json:"similarity"`
	Duplicate    bool                   `json:"duplicate"`
	Evidence     *CorroborationEvidence `json:"evidence,omitempty"`
}

// ContentHash is the hex SHA-256 of a claim's text.
func ContentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
