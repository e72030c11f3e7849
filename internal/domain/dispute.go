package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConsensusLevel int

const (
	ConsensusL1 ConsensusLevel = 1
	ConsensusL2 ConsensusLevel = 2
	ConsensusL3 ConsensusLevel = 3
)

// GetConsensusLevel tiers a belief by how many sources corroborate it.
func GetConsensusLevel(corroborations int) ConsensusLevel {
	switch {
	case corroborations >= 5:
		return ConsensusL3
	case corroborations >= 2:
		return ConsensusL2
	default:
		return ConsensusL1
	}
}

var consensusMultipliers = map[ConsensusLevel]float64{
	ConsensusL1: 1.0,
	ConsensusL2: 2.0,
	ConsensusL3: 5.0,
}

func ConsensusMultiplier(level ConsensusLevel) float64 {
	if m, ok := consensusMultipliers[level]; ok {
		return m
	}
	return consensusMultipliers[ConsensusL1]
}

// DisputePolicy carries the dispute gate tunables.
type DisputePolicy struct {
	BaseStake                float64
	QualityPenaltyThreshold  float64
	QualityPenaltyMultiplier float64
	MinQuality               float64
	GraceFilings             int
}

func DefaultDisputePolicy() DisputePolicy {
	return DisputePolicy{
		BaseStake:                10.0,
		QualityPenaltyThreshold:  0.2,
		QualityPenaltyMultiplier: 3.0,
		MinQuality:               0.1,
		GraceFilings:             3,
	}
}

type StakeRequirement struct {
	BaseAmount          float64        `json:"base_amount"`
	ConsensusLevel      ConsensusLevel `json:"consensus_level"`
	ConsensusMultiplier float64        `json:"consensus_multiplier"`
	QualityMultiplier   float64        `json:"quality_multiplier"`
	TotalRequired       float64        `json:"total_required"`
	Reason              string         `json:"reason"`
}

// CalculateStakeRequirement sizes the stake for disputing a belief with the
// given corroboration count, filed by someone with the given quality score.
func (p DisputePolicy) CalculateStakeRequirement(corroborations int, qualityScore, baseStake float64) StakeRequirement {
	level := GetConsensusLevel(corroborations)
	consensus := ConsensusMultiplier(level)

	quality := 1.0
	reason := "standard stake"
	if qualityScore < p.QualityPenaltyThreshold {
		quality = p.QualityPenaltyMultiplier
		reason = "low dispute quality penalty applied"
	}

	return StakeRequirement{
		BaseAmount:          baseStake,
		ConsensusLevel:      level,
		ConsensusMultiplier: consensus,
		QualityMultiplier:   quality,
		TotalRequired:       baseStake * consensus * quality,
		Reason:              reason,
	}
}

// DisputeQuality is a filer's track record.
type DisputeQuality struct {
	IdentityDID   string `json:"identity_did"`
	DisputesFiled int    `json:"disputes_filed"`
	DisputesWon   int    `json:"disputes_won"`
	DisputesLost  int    `json:"disputes_lost"`
}

// Score is won / (filed + 1); a brand-new identity scores 0.5.
func (q DisputeQuality) Score() float64 {
	if q.DisputesFiled == 0 && q.DisputesWon == 0 {
		return 0.5
	}
	return float64(q.DisputesWon) / float64(q.DisputesFiled+1)
}

// CanFile lets anyone through their first few filings, then requires a
// minimum score.
func (p DisputePolicy) CanFile(q DisputeQuality) bool {
	return q.DisputesFiled < p.GraceFilings || q.Score() >= p.MinQuality
}

// CanFile applies the default policy.
func (q DisputeQuality) CanFile() bool {
	return DefaultDisputePolicy().CanFile(q)
}

type DisputeOutcome string

const (
	DisputePending   DisputeOutcome = "pending"
	DisputeUpheld    DisputeOutcome = "upheld"
	DisputeDismissed DisputeOutcome = "dismissed"
	DisputeWithdrawn DisputeOutcome = "withdrawn"
)

type Dispute struct {
	ID          uuid.UUID      `json:"id"`
	BeliefID    string         `json:"belief_id"`
	DisputerDID string         `json:"disputer_did"`
	Reason      string         `json:"reason"`
	StakeAmount float64        `json:"stake_amount"`
	FiledAt     time.Time      `json:"filed_at"`
	Outcome     DisputeOutcome `json:"outcome"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}
