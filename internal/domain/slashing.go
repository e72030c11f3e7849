package domain

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var slashPercents = map[Severity]float64{
	SeverityCritical: 0.50,
	SeverityHigh:     0.25,
	SeverityLow:      0.0,
}

func ValidSeverity(s string) bool {
	_, ok := slashPercents[Severity(s)]
	return ok
}

// SlashPercent is the share of stake at risk that a severity forfeits. Low
// severity is recorded for pattern tracking only.
func SlashPercent(s Severity) float64 {
	return slashPercents[s]
}

// Offense enumerates punishable misbehavior.
type Offense string

const (
	OffenseCollusion          Offense = "collusion"
	OffenseDoubleVote         Offense = "double_vote"
	OffenseFalseCorroboration Offense = "false_corroboration"
	OffenseCommitmentWithheld Offense = "commitment_withheld"
	OffenseSybil              Offense = "sybil"
	OffenseFrivolousDisputes  Offense = "frivolous_disputes"
)

func ValidOffense(s string) bool {
	switch Offense(s) {
	case OffenseCollusion, OffenseDoubleVote, OffenseFalseCorroboration,
		OffenseCommitmentWithheld, OffenseSybil, OffenseFrivolousDisputes:
		return true
	}
	return false
}

type SlashingStatus string

const (
	SlashingPending  SlashingStatus = "pending"
	SlashingAppealed SlashingStatus = "appealed"
	SlashingExecuted SlashingStatus = "executed"
	SlashingRejected SlashingStatus = "rejected"
)

// Open reports whether the event can still be executed or rejected.
func (s SlashingStatus) Open() bool {
	return s == SlashingPending || s == SlashingAppealed
}

type SlashingEvent struct {
	ID             uuid.UUID      `json:"id"`
	ValidatorDID   string         `json:"validator_did"`
	Offense        Offense        `json:"offense"`
	Severity       Severity       `json:"severity"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	StakeAtRisk    float64        `json:"stake_at_risk"`
	SlashAmount    float64        `json:"slash_amount"`
	Status         SlashingStatus `json:"status"`
	ReportedBy     string         `json:"reported_by"`
	AppealReason   string         `json:"appeal_reason,omitempty"`
	AppealDeadline time.Time      `json:"appeal_deadline"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type StakeStatus string

const (
	StakeActive StakeStatus = "active"
	StakeLocked StakeStatus = "locked"
)

// StakePosition is an identity's bonded balance. LockedAmount is reserved by
// open disputes; Status is locked while a slashing event is being adjudicated.
type StakePosition struct {
	IdentityDID  string      `json:"identity_did"`
	Amount       float64     `json:"amount"`
	LockedAmount float64     `json:"locked_amount"`
	Status       StakeStatus `json:"status"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (p *StakePosition) Available() float64 {
	free := p.Amount - p.LockedAmount
	if free < 0 {
		return 0
	}
	return free
}
