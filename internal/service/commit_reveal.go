package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/metrics"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultRevealDelay  = 60 * time.Second
	defaultRevealWindow = 60 * time.Minute
)

var (
	ErrCommitmentNotFound  = fmt.Errorf("%w: commitment", domain.ErrNotFound)
	ErrDuplicateCommitment = fmt.Errorf("%w: committer already committed on this belief", domain.ErrConflict)
	ErrAlreadyRevealed     = fmt.Errorf("%w: commitment already revealed", domain.ErrConflict)
	ErrRevealWindowNotOpen = fmt.Errorf("%w: reveal window not open", domain.ErrConflict)
	ErrCommitPhaseClosed   = fmt.Errorf("%w: reveals on this belief have already opened", domain.ErrConflict)
	ErrNotCommitter        = fmt.Errorf("%w: only the committer may reveal", domain.ErrPermission)
)

// CommitmentRequest opens a commitment. Nil timing fields take the service
// defaults.
type CommitmentRequest struct {
	BeliefID            string
	CommitterDID        string
	CommitmentHash      string
	DelaySeconds        *int
	RevealWindowMinutes *int
}

type CommitRevealService struct {
	store  domain.CommitmentStore
	tx     domain.Transactor
	logger *zap.Logger
	now    func() time.Time

	RevealDelay  time.Duration
	RevealWindow time.Duration
}

func NewCommitRevealService(s domain.CommitmentStore, tx domain.Transactor, logger *zap.Logger) *CommitRevealService {
	return &CommitRevealService{
		store:        s,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
		RevealDelay:  defaultRevealDelay,
		RevealWindow: defaultRevealWindow,
	}
}

// SubmitCommitment stores a sealed vote. The reveal window opens after the
// delay and stays open for the window length. Once any commitment on the
// belief has reached its reveal window, new commitments are refused.
func (s *CommitRevealService) SubmitCommitment(ctx context.Context, req CommitmentRequest) (*domain.Commitment, error) {
	if req.BeliefID == "" {
		return nil, domain.NewValidationError("belief_id", "is required")
	}
	if req.CommitterDID == "" {
		return nil, domain.NewValidationError("committer_did", "is required")
	}
	hash := strings.ToLower(req.CommitmentHash)
	if !domain.ValidCommitmentHash(hash) {
		return nil, domain.NewValidationError("commitment_hash", "must be a hex-encoded SHA-256 digest")
	}

	delay := s.RevealDelay
	if req.DelaySeconds != nil {
		if *req.DelaySeconds < 0 {
			return nil, domain.NewValidationError("delay_seconds", "must not be negative")
		}
		delay = time.Duration(*req.DelaySeconds) * time.Second
	}
	window := s.RevealWindow
	if req.RevealWindowMinutes != nil {
		if *req.RevealWindowMinutes <= 0 {
			return nil, domain.NewValidationError("reveal_window_minutes", "must be positive")
		}
		window = time.Duration(*req.RevealWindowMinutes) * time.Minute
	}

	now := s.now()
	opens := now.Add(delay)
	c := &domain.Commitment{
		BeliefID:           req.BeliefID,
		CommitterDID:       req.CommitterDID,
		CommitmentHash:     hash,
		CommittedAt:        now,
		RevealWindowOpens:  opens,
		RevealWindowCloses: opens.Add(window),
		Status:             domain.CommitmentCommitted,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockBelief(ctx, req.BeliefID); err != nil {
			return err
		}
		earliest, err := s.store.EarliestRevealWindow(ctx, req.BeliefID)
		if err != nil {
			return err
		}
		if earliest != nil && !now.Before(*earliest) {
			return ErrCommitPhaseClosed
		}
		if err := s.store.Create(ctx, c); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateCommitment
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("commitment submitted",
		zap.String("commitment_id", c.ID.String()),
		zap.String("belief_id", c.BeliefID),
		zap.String("committer_did", c.CommitterDID),
		zap.Time("reveal_window_opens", c.RevealWindowOpens),
		zap.Time("reveal_window_closes", c.RevealWindowCloses))
	return c, nil
}

// SubmitReveal discloses the vote behind a commitment. A mismatched hash
// yields IsValid=false and leaves the commitment untouched. A matching but
// late reveal is recorded and the commitment moves to penalty. callerDID may
// be empty for trusted internal callers.
func (s *CommitRevealService) SubmitReveal(ctx context.Context, commitmentID uuid.UUID, callerDID, vote, nonce string) (*domain.Reveal, error) {
	if vote == "" {
		return nil, domain.NewValidationError("vote_value", "is required")
	}

	var reveal *domain.Reveal
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.store.LockByID(ctx, commitmentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrCommitmentNotFound
			}
			return err
		}
		if callerDID != "" && c.CommitterDID != callerDID {
			return ErrNotCommitter
		}
		// A no_reveal commitment can still be revealed; it is late by definition.
		if c.Status != domain.CommitmentCommitted && c.Status != domain.CommitmentNoReveal {
			return ErrAlreadyRevealed
		}

		now := s.now()
		if now.Before(c.RevealWindowOpens) {
			return ErrRevealWindowNotOpen
		}

		computed := domain.ComputeCommitmentHash(vote, nonce)
		reveal = &domain.Reveal{
			CommitmentID: c.ID,
			VoteValue:    vote,
			Nonce:        nonce,
			RevealedAt:   now,
			IsValid:      subtle.ConstantTimeCompare([]byte(computed), []byte(c.CommitmentHash)) == 1,
			IsLate:       now.After(c.RevealWindowCloses),
		}
		if !reveal.IsValid {
			s.logger.Warn("reveal hash mismatch",
				zap.String("commitment_id", c.ID.String()),
				zap.String("committer_did", c.CommitterDID))
			return nil
		}

		if err := s.store.CreateReveal(ctx, reveal); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAlreadyRevealed
			}
			return err
		}

		to := domain.CommitmentRevealed
		if reveal.IsLate {
			to = domain.CommitmentPenalty
		}
		ok, err := s.store.TransitionStatus(ctx, c.ID, c.Status, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyRevealed
		}
		metrics.RecordCommitmentOutcome(string(to), 1)

		s.logger.Info("commitment revealed",
			zap.String("commitment_id", c.ID.String()),
			zap.String("belief_id", c.BeliefID),
			zap.String("status", string(to)),
			zap.Bool("late", reveal.IsLate))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reveal, nil
}

// ExpireUnrevealed marks every committed row whose window closed without a
// reveal as no_reveal.
func (s *CommitRevealService) ExpireUnrevealed(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireUnrevealed(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordCommitmentOutcome(string(domain.CommitmentNoReveal), int(n))
	}
	return n, nil
}

func (s *CommitRevealService) GetCommitment(ctx context.Context, id uuid.UUID) (*domain.Commitment, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCommitmentNotFound
		}
		return nil, err
	}
	return c, nil
}

// Tally counts the valid on-time votes disclosed for a belief.
func (s *CommitRevealService) Tally(ctx context.Context, beliefID string) (*domain.VoteTally, error) {
	commitments, err := s.store.ListByBelief(ctx, beliefID)
	if err != nil {
		return nil, err
	}
	reveals, err := s.store.ListReveals(ctx, beliefID)
	if err != nil {
		return nil, err
	}

	tally := &domain.VoteTally{BeliefID: beliefID, Votes: make(map[string]int)}
	for _, c := range commitments {
		switch c.Status {
		case domain.CommitmentCommitted:
			tally.Committed++
		case domain.CommitmentPenalty:
			tally.Penalized++
		case domain.CommitmentNoReveal:
			tally.NoReveal++
		}
	}
	for _, r := range reveals {
		if r.IsValid && !r.IsLate {
			tally.Votes[r.VoteValue]++
		}
	}
	return tally, nil
}
