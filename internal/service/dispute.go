package service

import (
	"context"
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

var (
	ErrQualityTooLow     = fmt.Errorf("%w: quality too low", domain.ErrPermission)
	ErrDisputeNotFound   = fmt.Errorf("%w: dispute", domain.ErrNotFound)
	ErrDuplicateDispute  = fmt.Errorf("%w: a pending dispute on this belief already exists", domain.ErrConflict)
	ErrDisputeClosed     = fmt.Errorf("%w: dispute is no longer pending", domain.ErrConflict)
	ErrNotDisputer       = fmt.Errorf("%w: only the filer may withdraw a dispute", domain.ErrPermission)
	ErrInvalidResolution = domain.NewValidationError("outcome", "must be upheld or dismissed")
)

// DisputeService gates dispute filing on stake and filer history, and settles
// the stake when a dispute closes.
type DisputeService struct {
	disputes domain.DisputeStore
	evidence domain.CorroborationStore
	stakes   domain.StakeStore
	tx       domain.Transactor
	policy   domain.DisputePolicy
	logger   *zap.Logger
	now      func() time.Time
}

func NewDisputeService(
	ds domain.DisputeStore,
	cs domain.CorroborationStore,
	ss domain.StakeStore,
	tx domain.Transactor,
	policy domain.DisputePolicy,
	logger *zap.Logger,
) *DisputeService {
	return &DisputeService{
		disputes: ds,
		evidence: cs,
		stakes:   ss,
		tx:       tx,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateDisputeFiling returns the stake filerDID must lock to dispute
// beliefID, or an error when the filer may not file at all.
func (s *DisputeService) ValidateDisputeFiling(ctx context.Context, filerDID, beliefID string) (*domain.StakeRequirement, error) {
	if filerDID == "" {
		return nil, domain.NewValidationError("filer_did", "is required")
	}
	if beliefID == "" {
		return nil, domain.NewValidationError("belief_id", "is required")
	}

	quality, err := s.disputes.GetQuality(ctx, filerDID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanFile(quality) {
		return nil, ErrQualityTooLow
	}

	ev, err := s.evidence.GetEvidence(ctx, beliefID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBeliefNotFound
		}
		return nil, err
	}

	req := s.policy.CalculateStakeRequirement(ev.CorroborationCount(), quality.Score(), s.policy.BaseStake)
	return &req, nil
}

// FileDispute validates the filing and locks the required stake from the
// filer's position in one transaction.
func (s *DisputeService) FileDispute(ctx context.Context, filerDID, beliefID, reason string) (*domain.Dispute, *domain.StakeRequirement, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, nil, domain.NewValidationError("reason", "is required")
	}

	var d *domain.Dispute
	var req *domain.StakeRequirement
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.ValidateDisputeFiling(ctx, filerDID, beliefID)
		if err != nil {
			return err
		}

		pos, err := s.stakes.Lock(ctx, filerDID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInsufficientStake
			}
			return err
		}
		if pos.Available() < req.TotalRequired {
			return ErrInsufficientStake
		}

		d = &domain.Dispute{
			BeliefID:    beliefID,
			DisputerDID: filerDID,
			Reason:      reason,
			StakeAmount: req.TotalRequired,
			FiledAt:     s.now(),
			Outcome:     domain.DisputePending,
		}
		if err := s.disputes.Create(ctx, d); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateDispute
			}
			return err
		}

		pos.LockedAmount += req.TotalRequired
		return s.stakes.Update(ctx, pos)
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.RecordDispute(string(domain.DisputePending))
	s.logger.Info("dispute filed",
		zap.String("dispute_id", d.ID.String()),
		zap.String("belief_id", beliefID),
		zap.String("disputer_did", filerDID),
		zap.Int("consensus_level", int(req.ConsensusLevel)),
		zap.Float64("stake", req.TotalRequired))
	return d, req, nil
}

// ResolveDispute closes a pending dispute. Upheld returns the stake to the
// filer; dismissed forfeits it.
func (s *DisputeService) ResolveDispute(ctx context.Context, id uuid.UUID, outcome domain.DisputeOutcome) (*domain.Dispute, error) {
	if outcome != domain.DisputeUpheld && outcome != domain.DisputeDismissed {
		return nil, ErrInvalidResolution
	}
	return s.close(ctx, id, "", outcome)
}

// WithdrawDispute lets the filer drop a pending dispute and recover the stake.
func (s *DisputeService) WithdrawDispute(ctx context.Context, id uuid.UUID, callerDID string) (*domain.Dispute, error) {
	return s.close(ctx, id, callerDID, domain.DisputeWithdrawn)
}

func (s *DisputeService) close(ctx context.Context, id uuid.UUID, callerDID string, outcome domain.DisputeOutcome) (*domain.Dispute, error) {
	var d *domain.Dispute
	var forfeited float64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.disputes.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrDisputeNotFound
			}
			return err
		}
		if outcome == domain.DisputeWithdrawn && d.DisputerDID != callerDID {
			return ErrNotDisputer
		}
		if d.Outcome != domain.DisputePending {
			return ErrDisputeClosed
		}

		now := s.now()
		ok, err := s.disputes.Resolve(ctx, id, outcome, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDisputeClosed
		}
		d.Outcome = outcome
		d.ResolvedAt = &now

		pos, err := s.stakes.Lock(ctx, d.DisputerDID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("dispute closed without a stake position",
					zap.String("dispute_id", id.String()),
					zap.String("disputer_did", d.DisputerDID))
				return nil
			}
			return err
		}
		pos.LockedAmount = clampZero(pos.LockedAmount - d.StakeAmount)
		if outcome == domain.DisputeDismissed {
			forfeited = d.StakeAmount
			if forfeited > pos.Amount {
				forfeited = pos.Amount
			}
			pos.Amount -= forfeited
		}
		return s.stakes.Update(ctx, pos)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordDispute(string(outcome))
	if forfeited > 0 {
		metrics.RecordStakeForfeited(forfeited)
	}
	s.logger.Info("dispute closed",
		zap.String("dispute_id", id.String()),
		zap.String("belief_id", d.BeliefID),
		zap.String("outcome", string(outcome)),
		zap.Float64("forfeited", forfeited))
	return d, nil
}

func (s *DisputeService) GetDispute(ctx context.Context, id uuid.UUID) (*domain.Dispute, error) {
	d, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *DisputeService) GetQuality(ctx context.Context, did string) (domain.DisputeQuality, error) {
	return s.disputes.GetQuality(ctx, did)
}

// clampZero clamps negative balances left by rounding to zero.
func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// CanFile applies the configured policy to a track record.
func (s *DisputeService) CanFile(q domain.DisputeQuality) bool {
	return s.policy.CanFile(q)
}
