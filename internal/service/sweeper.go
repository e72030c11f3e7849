package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = 1 * time.Minute

// SweeperService applies the deadline-driven transitions: unrevealed
// commitments, expired trust edges and matured slashing events.
type SweeperService struct {
	commitReveal *CommitRevealService
	trust        *TrustService
	slashing     *SlashingService
	logger       *zap.Logger

	autoExecute bool
	interval    time.Duration
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewSweeperService(cr *CommitRevealService, ts *TrustService, ss *SlashingService, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		commitReveal: cr,
		trust:        ts,
		slashing:     ss,
		logger:       logger,
		autoExecute:  true,
		interval:     defaultSweepInterval,
		stopCh:       make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	s.interval = d
}

// SetAutoExecute controls whether matured slashing events are executed.
func (s *SweeperService) SetAutoExecute(v bool) {
	s.autoExecute = v
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.RunOnce(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SweepResult counts what one pass changed.
type SweepResult struct {
	NoReveal        int64 `json:"no_reveal"`
	EdgesDeleted    int64 `json:"edges_deleted"`
	SlashesExecuted int   `json:"slashes_executed"`
}

// RunOnce performs a single sweep. A failing step is logged and the rest
// still run.
func (s *SweeperService) RunOnce(ctx context.Context) SweepResult {
	var res SweepResult

	n, err := s.commitReveal.ExpireUnrevealed(ctx)
	if err != nil {
		s.logger.Error("failed to expire unrevealed commitments", zap.Error(err))
	} else if n > 0 {
		res.NoReveal = n
		s.logger.Info("expired unrevealed commitments", zap.Int64("count", n))
	}

	deleted, err := s.trust.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("failed to delete expired trust edges", zap.Error(err))
	} else if deleted > 0 {
		res.EdgesDeleted = deleted
		s.logger.Info("deleted expired trust edges", zap.Int64("count", deleted))
	}

	if !s.autoExecute {
		return res
	}
	executed, err := s.slashing.ExecuteMatured(ctx)
	if err != nil {
		s.logger.Error("failed to execute matured slashing events", zap.Error(err))
	} else if executed > 0 {
		res.SlashesExecuted = executed
		s.logger.Info("executed matured slashing events", zap.Int("count", executed))
	}
	return res
}
