package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type CommitmentStatus string

const (
	CommitmentCommitted CommitmentStatus = "committed"
	CommitmentRevealed  CommitmentStatus = "revealed"
	CommitmentPenalty   CommitmentStatus = "penalty"
	CommitmentNoReveal  CommitmentStatus = "no_reveal"
)

type Commitment struct {
	ID                 uuid.UUID        `json:"id"`
	BeliefID           string           `json:"belief_id"`
	CommitterDID       string           `json:"committer_did"`
	CommitmentHash     string           `json:"commitment_hash"`
	CommittedAt        time.Time        `json:"committed_at"`
	RevealWindowOpens  time.Time        `json:"reveal_window_opens"`
	RevealWindowCloses time.Time        `json:"reveal_window_closes"`
	Status             CommitmentStatus `json:"status"`
}

type Reveal struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	VoteValue    string    `json:"vote_value"`
	Nonce        string    `json:"nonce"`
	RevealedAt   time.Time `json:"revealed_at"`
	IsValid      bool      `json:"is_valid"`
	IsLate       bool      `json:"is_late"`
}

// VoteTally summarizes disclosed votes on one belief. Only valid, on-time
// reveals count toward Votes.
type VoteTally struct {
	BeliefID  string         `json:"belief_id"`
	Votes     map[string]int `json:"votes"`
	Committed int            `json:"committed"`
	Penalized int            `json:"penalized"`
	NoReveal  int            `json:"no_reveal"`
}

// ComputeCommitmentHash is hex(SHA256(vote || nonce)).
func ComputeCommitmentHash(vote, nonce string) string {
	h := sha256.New()
	h.Write([]byte(vote))
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidCommitmentHash reports whether s looks like a hex SHA-256 digest.
func ValidCommitmentHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
