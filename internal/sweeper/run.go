package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/tagflow/internal/observability"
)

const releaseTimeout = 5 * time.Second

// ErrLocked is returned by RunOnce when another instance holds the shard lock.
var ErrLocked = errors.New("sweep lock held by another instance")

// Run checks every tick whether today's sweep is due and runs it under the
// distributed lock. It blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.coord == nil {
		panic("sweeper: coordinator is required for Run")
	}

	s.logger.Info("starting sweeper service",
		slog.String("tick_interval", s.config.TickInterval.String()),
		slog.Int("run_hour_utc", s.config.RunHourUTC),
		slog.String("shard", ShardName(s.config)),
	)

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("sweeper service stopping...")
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs at most one sweep. Errors are logged; the next tick retries.
func (s *Service) tick(ctx context.Context) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if now.Hour() < s.config.RunHourUTC {
		return
	}
	if done, err := s.sweptToday(ctx, today); err != nil || done {
		if err != nil {
			s.logger.Error("failed to read last sweep date", slog.String("error", err.Error()))
		}
		return
	}

	ok, err := s.withLock(ctx, func() {
		// Another instance may have finished between the check and the lock.
		if done, err := s.sweptToday(ctx, today); err != nil || done {
			return
		}
		s.sweepAndMark(ctx, today)
	})
	if err != nil {
		s.logger.Error("failed to acquire sweep lock", slog.String("error", err.Error()))
		return
	}
	if !ok {
		s.logger.Debug("sweep lock held by another instance")
	}
}

// RunOnce sweeps now under the shard lock, ignoring the run hour and the
// last-run date. A completed sweep still marks today as done.
func (s *Service) RunOnce(ctx context.Context) (*DailyEvaluationReport, error) {
	if s.coord == nil {
		panic("sweeper: coordinator is required for RunOnce")
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var (
		report   *DailyEvaluationReport
		sweepErr error
	)
	ok, err := s.withLock(ctx, func() {
		report, sweepErr = s.sweepAndMark(ctx, today)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return report, sweepErr
}

// withLock runs fn while holding the shard lock. ok is false when another
// instance holds it.
func (s *Service) withLock(ctx context.Context, fn func()) (ok bool, err error) {
	release, ok, err := s.coord.Acquire(ctx, s.config.LockTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		observability.SweepRunsTotal.WithLabelValues("locked").Inc()
		return false, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("failed to release sweep lock", slog.String("error", err.Error()))
		}
	}()

	fn()
	return true, nil
}

func (s *Service) sweepAndMark(ctx context.Context, today time.Time) (*DailyEvaluationReport, error) {
	report, err := s.RunDailyEvaluation(ctx)
	if err != nil {
		s.logger.Error("daily evaluation failed", slog.String("error", err.Error()))
		return report, err
	}
	if report.Cancelled {
		return report, nil
	}

	if err := s.coord.MarkRun(ctx, today); err != nil {
		s.logger.Error("failed to record sweep date", slog.String("error", err.Error()))
	}
	return report, nil
}

func (s *Service) sweptToday(ctx context.Context, today time.Time) (bool, error) {
	last, err := s.coord.LastRun(ctx)
	if err != nil {
		return false, err
	}
	return !last.Before(today), nil
}
