package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/metrics"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAppealWindow = 24 * time.Hour
	maturedBatchSize    = 100
)

var (
	ErrSlashingEventNotFound = fmt.Errorf("%w: slashing event", domain.ErrNotFound)
	ErrNotValidator          = fmt.Errorf("%w: only the slashed validator may appeal", domain.ErrPermission)
	ErrAppealWindowClosed    = fmt.Errorf("%w: appeal deadline has passed", domain.ErrExpired)
)

// SlashingRequest reports an offense. A nil StakeAmount puts the validator's
// whole bonded balance at risk.
type SlashingRequest struct {
	ValidatorDID string
	Offense      domain.Offense
	Severity     domain.Severity
	Evidence     map[string]any
	ReportedBy   string
	StakeAmount  *float64
}

type SlashingService struct {
	events domain.SlashingStore
	stakes domain.StakeStore
	tx     domain.Transactor
	logger *zap.Logger
	now    func() time.Time

	AppealWindow time.Duration
}

func NewSlashingService(es domain.SlashingStore, ss domain.StakeStore, tx domain.Transactor, logger *zap.Logger) *SlashingService {
	return &SlashingService{
		events:       es,
		stakes:       ss,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
		AppealWindow: defaultAppealWindow,
	}
}

// CreateEvent opens a pending slashing event and locks the validator's stake
// until it is decided.
func (s *SlashingService) CreateEvent(ctx context.Context, req SlashingRequest) (*domain.SlashingEvent, error) {
	if req.ValidatorDID == "" {
		return nil, domain.NewValidationError("validator_did", "is required")
	}
	if !domain.ValidOffense(string(req.Offense)) {
		return nil, domain.NewValidationError("offense", "unknown offense")
	}
	if !domain.ValidSeverity(string(req.Severity)) {
		return nil, domain.NewValidationError("severity", "must be low, high or critical")
	}
	if req.ReportedBy == "" {
		return nil, domain.NewValidationError("reported_by", "is required")
	}
	if req.StakeAmount != nil {
		if v := *req.StakeAmount; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, domain.NewValidationError("stake_amount", "must be a non-negative number")
		}
	}

	var e *domain.SlashingEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pos, err := s.stakes.Lock(ctx, req.ValidatorDID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStakeNotFound
			}
			return err
		}

		atRisk := pos.Amount
		if req.StakeAmount != nil {
			atRisk = *req.StakeAmount
		}

		now := s.now()
		e = &domain.SlashingEvent{
			ValidatorDID:   req.ValidatorDID,
			Offense:        req.Offense,
			Severity:       req.Severity,
			Evidence:       req.Evidence,
			StakeAtRisk:    atRisk,
			SlashAmount:    atRisk * domain.SlashPercent(req.Severity),
			Status:         domain.SlashingPending,
			ReportedBy:     req.ReportedBy,
			AppealDeadline: now.Add(s.AppealWindow),
			CreatedAt:      now,
		}
		if err := s.events.Create(ctx, e); err != nil {
			return err
		}

		pos.Status = domain.StakeLocked
		return s.stakes.Update(ctx, pos)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSlashingEvent(string(e.Severity), string(e.Status))
	s.logger.Info("slashing event created",
		zap.String("event_id", e.ID.String()),
		zap.String("validator_did", e.ValidatorDID),
		zap.String("offense", string(e.Offense)),
		zap.String("severity", string(e.Severity)),
		zap.Float64("slash_amount", e.SlashAmount),
		zap.Time("appeal_deadline", e.AppealDeadline))
	return e, nil
}

// Appeal moves a pending event to appealed. It returns nil, nil when the event
// is no longer pending.
func (s *SlashingService) Appeal(ctx context.Context, id uuid.UUID, callerDID, reason string) (*domain.SlashingEvent, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.NewValidationError("reason", "is required")
	}

	var out *domain.SlashingEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if e.ValidatorDID != callerDID {
			return ErrNotValidator
		}
		if e.Status != domain.SlashingPending {
			return nil
		}
		now := s.now()
		if !now.Before(e.AppealDeadline) {
			return ErrAppealWindowClosed
		}

		ok, err := s.events.Appeal(ctx, id, reason, now)
		if err != nil || !ok {
			return err
		}
		e.Status = domain.SlashingAppealed
		e.AppealReason = reason
		out = e
		return nil
	})
	if err != nil || out == nil {
		return nil, err
	}

	metrics.RecordSlashingEvent(string(out.Severity), string(out.Status))
	s.logger.Info("slashing event appealed",
		zap.String("event_id", id.String()),
		zap.String("validator_did", out.ValidatorDID))
	return out, nil
}

// Execute forfeits the slash amount. It returns nil, nil when the event is
// already decided, so a repeated call never forfeits twice.
func (s *SlashingService) Execute(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	return s.decide(ctx, id, domain.SlashingExecuted)
}

// Reject closes the event without forfeiture. It returns nil, nil when the
// event is already decided.
func (s *SlashingService) Reject(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	return s.decide(ctx, id, domain.SlashingRejected)
}

func (s *SlashingService) decide(ctx context.Context, id uuid.UUID, to domain.SlashingStatus) (*domain.SlashingEvent, error) {
	var out *domain.SlashingEvent
	var forfeited float64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.Open() {
			return nil
		}

		now := s.now()
		ok, err := s.events.TransitionStatus(ctx, id,
			[]domain.SlashingStatus{domain.SlashingPending, domain.SlashingAppealed}, to, &now)
		if err != nil || !ok {
			return err
		}
		e.Status = to
		e.DecidedAt = &now
		out = e

		pos, err := s.stakes.Lock(ctx, e.ValidatorDID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("slashing decided without a stake position",
					zap.String("event_id", id.String()),
					zap.String("validator_did", e.ValidatorDID))
				return nil
			}
			return err
		}

		if to == domain.SlashingExecuted {
			forfeited = math.Min(e.SlashAmount, pos.Amount)
			pos.Amount -= forfeited
			if pos.LockedAmount > pos.Amount {
				pos.LockedAmount = pos.Amount
			}
		}

		open, err := s.events.CountOpen(ctx, e.ValidatorDID, id)
		if err != nil {
			return err
		}
		if open == 0 {
			pos.Status = domain.StakeActive
		}
		return s.stakes.Update(ctx, pos)
	})
	if err != nil || out == nil {
		return nil, err
	}

	metrics.RecordSlashingEvent(string(out.Severity), string(out.Status))
	if forfeited > 0 {
		metrics.RecordStakeForfeited(forfeited)
	}
	s.logger.Info("slashing event decided",
		zap.String("event_id", id.String()),
		zap.String("validator_did", out.ValidatorDID),
		zap.String("status", string(out.Status)),
		zap.Float64("forfeited", forfeited))
	return out, nil
}

// ExecuteMatured executes pending events whose appeal deadline has passed.
// Failures on one event are logged and do not stop the batch.
func (s *SlashingService) ExecuteMatured(ctx context.Context) (int, error) {
	matured, err := s.events.ListMatured(ctx, s.now(), maturedBatchSize)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, e := range matured {
		out, err := s.Execute(ctx, e.ID)
		if err != nil {
			s.logger.Warn("failed to execute matured slashing event",
				zap.String("event_id", e.ID.String()),
				zap.Error(err))
			continue
		}
		if out != nil {
			executed++
		}
	}
	return executed, nil
}

func (s *SlashingService) Get(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSlashingEventNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *SlashingService) ListByValidator(ctx context.Context, did string) ([]domain.SlashingEvent, error) {
	events, err := s.events.ListByValidator(ctx, did)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.SlashingEvent{}
	}
	return events, nil
}

func (s *SlashingService) lock(ctx context.Context, id uuid.UUID) (*domain.SlashingEvent, error) {
	e, err := s.events.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSlashingEventNotFound
		}
		return nil, err
	}
	return e, nil
}
