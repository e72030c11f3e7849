package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/store"
	"go.uber.org/zap"
)

var (
	ErrStakeNotFound     = fmt.Errorf("%w: stake position", domain.ErrNotFound)
	ErrStakeLocked       = fmt.Errorf("%w: stake is locked pending adjudication", domain.ErrConflict)
	ErrInsufficientStake = domain.NewValidationError("amount", "exceeds available stake")
)

// StakeService is the bonded-balance ledger disputes and slashing draw on.
type StakeService struct {
	store  domain.StakeStore
	tx     domain.Transactor
	logger *zap.Logger
}

func NewStakeService(s domain.StakeStore, tx domain.Transactor, logger *zap.Logger) *StakeService {
	return &StakeService{store: s, tx: tx, logger: logger}
}

func validAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return domain.NewValidationError("amount", "must be a positive number")
	}
	return nil
}

func (s *StakeService) Deposit(ctx context.Context, did string, amount float64) (*domain.StakePosition, error) {
	if did == "" {
		return nil, domain.NewValidationError("identity_did", "is required")
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	p, err := s.store.Deposit(ctx, did, amount)
	if err != nil {
		return nil, err
	}
	s.logger.Info("stake deposited",
		zap.String("identity_did", did),
		zap.Float64("amount", amount),
		zap.Float64("balance", p.Amount))
	return p, nil
}

// Withdraw releases free balance. Nothing can leave a locked position.
func (s *StakeService) Withdraw(ctx context.Context, did string, amount float64) (*domain.StakePosition, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	var pos *domain.StakePosition
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.store.Lock(ctx, did)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrStakeNotFound
			}
			return err
		}
		if p.Status == domain.StakeLocked {
			return ErrStakeLocked
		}
		if p.Available() < amount {
			return ErrInsufficientStake
		}
		p.Amount -= amount
		if err := s.store.Update(ctx, p); err != nil {
			return err
		}
		pos = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stake withdrawn",
		zap.String("identity_did", did),
		zap.Float64("amount", amount),
		zap.Float64("balance", pos.Amount))
	return pos, nil
}

func (s *StakeService) GetPosition(ctx context.Context, did string) (*domain.StakePosition, error) {
	p, err := s.store.Get(ctx, did)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, err
	}
	return p, nil
}
