// Package sweeper implements the daily evaluation sweep: it pages through
// every active customer, evaluates them in bounded concurrent batches, and
// applies, queues for review, or leaves each one unchanged.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/validation"
)

// Lifecycle is the subset of lifecycle.Service the sweep drives.
type Lifecycle interface {
	Catalog() *ruleengine.Catalog
	EvaluateProfile(ctx context.Context, p *lifecycle.Profile) (*ruleengine.Evaluation, error)
	Apply(ctx context.Context, req lifecycle.ApplyRequest) *lifecycle.StatusTransitionResult
	EnqueueReview(ctx context.Context, eval ruleengine.Evaluation) (*lifecycle.Review, error)
}

// Coordinator keeps one sweep per shard per day across instances.
// cache.SweepCoordinator implements it on Redis.
type Coordinator interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
	LastRun(ctx context.Context) (time.Time, error)
	MarkRun(ctx context.Context, day time.Time) error
}

var _ Lifecycle = (*lifecycle.Service)(nil)

// Service runs the sweep.
type Service struct {
	logger    *slog.Logger
	config    config.SweeperConfig
	profiles  lifecycle.ProfileStore
	lifecycle Lifecycle
	coord     Coordinator
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a sweeper. coord may be nil when only RunDailyEvaluation is
// used (e.g. the CLI); Run requires it.
func New(logger *slog.Logger, cfg config.SweeperConfig, profiles lifecycle.ProfileStore, lc Lifecycle, coord Coordinator, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertPresent(profiles, "sweeper profile store")
	validation.AssertPresent(lc, "sweeper lifecycle service")

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.ShardCount < 1 {
		cfg.ShardCount = 1
	}
	if cfg.AutoApplyThreshold <= 0 || cfg.AutoApplyThreshold > 1 {
		cfg.AutoApplyThreshold = 0.8
	}
	if cfg.TickInterval < time.Second {
		cfg.TickInterval = time.Minute
	}

	s := &Service{
		logger:    logger,
		config:    cfg,
		profiles:  profiles,
		lifecycle: lc,
		coord:     coord,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShardName identifies this instance's slice of the customer base in
// coordination keys, e.g. "0-of-1".
func ShardName(cfg config.SweeperConfig) string {
	return fmt.Sprintf("%d-of-%d", cfg.ShardIndex, max(cfg.ShardCount, 1))
}

// RunDailyEvaluation sweeps every active customer once. It always returns a
// report; the error is non-nil only when customers could not be listed.
// Cancelling ctx stops the sweep between batches and flags the report.
func (s *Service) RunDailyEvaluation(ctx context.Context) (*DailyEvaluationReport, error) {
	report := &DailyEvaluationReport{
		SweepID:   uuid.NewString(),
		StartedAt: s.now().UTC(),
		Results:   []CustomerResult{},
	}
	log := s.logger.With(slog.String("sweep_id", report.SweepID))
	ctx = logger.WithContext(ctx, log)

	log.Info("daily evaluation started",
		slog.Int("batch_size", s.config.BatchSize),
		slog.String("shard", ShardName(s.config)),
	)

	err := s.sweep(ctx, report)

	report.FinishedAt = s.now().UTC()
	report.DurationMs = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	observability.SweepDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())

	status := "success"
	switch {
	case err != nil:
		status = "failed"
	case report.Cancelled:
		status = "cancelled"
	default:
		observability.SweepLastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
	observability.SweepRunsTotal.WithLabelValues(status).Inc()

	log.Info("daily evaluation finished",
		slog.String("status", status),
		slog.Int("evaluated", report.TotalEvaluated),
		slog.Int("applied", report.TransitionsApplied),
		slog.Int("manual_review", report.ManualReviews),
		slog.Int("no_change", report.NoChange),
		slog.Int("errors", report.Errors),
		slog.Int("skipped_terminal", report.SkippedTerminal),
		slog.Int64("duration_ms", report.DurationMs),
	)
	return report, err
}

func (s *Service) sweep(ctx context.Context, report *DailyEvaluationReport) error {
	catalog := s.lifecycle.Catalog()
	after := ""

	for {
		if ctx.Err() != nil {
			report.Cancelled = true
			return nil
		}

		page, err := s.profiles.ListActive(ctx, after, s.config.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
				return nil
			}
			return fmt.Errorf("list customers after %q: %w", after, err)
		}
		if len(page) == 0 {
			return nil
		}
		after = page[len(page)-1].ID

		batch := make([]*lifecycle.Profile, 0, len(page))
		for _, p := range page {
			if !s.inShard(p.ID) {
				continue
			}
			if catalog.IsTerminal(p.CurrentTag) {
				s.record(report, CustomerResult{CustomerID: p.ID, Action: ActionSkippedTerminal, FromTag: p.CurrentTag})
				continue
			}
			batch = append(batch, p)
		}

		for _, res := range s.processBatch(ctx, batch) {
			s.record(report, res)
		}

		if len(page) < s.config.BatchSize {
			return nil
		}
		if s.config.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				report.Cancelled = true
				return nil
			case <-time.After(s.config.BatchDelay):
			}
		}
	}
}

func (s *Service) record(report *DailyEvaluationReport, res CustomerResult) {
	report.record(res)
	observability.SweepCustomersTotal.WithLabelValues(string(res.Action)).Inc()
}

// inShard assigns customers to shards by murmur3 hash of their id.
func (s *Service) inShard(customerID string) bool {
	if s.config.ShardCount <= 1 {
		return true
	}
	return murmur3.Sum32([]byte(customerID))%uint32(s.config.ShardCount) == uint32(s.config.ShardIndex)
}

// processBatch evaluates the batch concurrently and waits for all of it.
// Results keep the batch order.
func (s *Service) processBatch(ctx context.Context, batch []*lifecycle.Profile) []CustomerResult {
	results := make([]CustomerResult, len(batch))

	var g errgroup.Group
	for i, p := range batch {
		g.Go(func() error {
			results[i] = s.processCustomer(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) processCustomer(ctx context.Context, p *lifecycle.Profile) (res CustomerResult) {
	res = CustomerResult{CustomerID: p.ID, FromTag: p.CurrentTag}
	log := logger.FromContext(ctx).With(slog.String("customer_id", p.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("customer evaluation panicked", slog.Any("panic", r))
			res.Action = ActionError
			res.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	eval, err := s.lifecycle.EvaluateProfile(ctx, p)
	if err != nil {
		log.Warn("customer evaluation failed", slog.String("error", err.Error()))
		return withError(res, err)
	}

	rec := eval.Recommended
	if rec == nil {
		res.Action = ActionNoChange
		return res
	}
	res.ToTag = rec.To
	res.Confidence = eval.Confidence

	switch {
	case eval.RequiresManualReview:
		review, err := s.lifecycle.EnqueueReview(ctx, *eval)
		if err != nil {
			log.Warn("failed to queue review", slog.String("error", err.Error()))
			return withError(res, err)
		}
		res.Action = ActionManualReview
		res.ReviewID = review.ID

	case eval.Confidence >= s.config.AutoApplyThreshold:
		conf := eval.Confidence
		result := s.lifecycle.Apply(ctx, lifecycle.ApplyRequest{
			CustomerID:   p.ID,
			ToTag:        rec.To,
			Reason:       fmt.Sprintf("rule %s matched with confidence %.2f", rec.RuleID, conf),
			AppliedBy:    lifecycle.AppliedByAuto,
			Trigger:      lifecycle.TriggerDailySweep,
			ExpectedFrom: eval.CurrentTag,
			Confidence:   &conf,
		})
		if !result.Success {
			err := result.Err
			if err == nil {
				err = errors.New(result.Error)
			}
			return withError(res, err)
		}
		res.Action = ActionApplied

	default:
		res.Action = ActionNoChange
	}
	return res
}

func withError(res CustomerResult, err error) CustomerResult {
	res.Action = ActionError
	res.Error = err.Error()
	return res
}
