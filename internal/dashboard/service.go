// Package dashboard serves the read-only reporting aggregates.
//
// Aggregates are read through an in-process L1 cache so that reporting UIs
// polling every few seconds do not each run a GROUP BY over the transition
// log. Writes that change the aggregates call Invalidate.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rafaeljc/tagflow/internal/cache"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/validation"
)

// MaxWindowDays bounds the transition analytics window.
const MaxWindowDays = 365

const (
	keyDistribution = "distribution"
	keyPending      = "pending_reviews"
)

// Summary is the landing view of a reporting UI.
type Summary struct {
	TotalCustomers    int64                `json:"total_customers"`
	Distribution      []lifecycle.TagCount `json:"distribution"`
	PendingReviews    int64                `json:"pending_reviews"`
	TransitionsLast7d int64                `json:"transitions_last_7d"`
	AutomaticLast7d   int64                `json:"automatic_last_7d"`
	GeneratedAt       time.Time            `json:"generated_at"`
}

// Service wraps a lifecycle.DashboardQuery with the L1 cache.
type Service struct {
	query        lifecycle.DashboardQuery
	l1           *cache.MemoryCache[string, any]
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the dashboard service. Call Close to stop the cache's
// expiry goroutine.
func New(logger *slog.Logger, cfg config.DashboardConfig, query lifecycle.DashboardQuery, opts ...Option) (*Service, error) {
	validation.AssertPresent(query, "dashboard query")
	if logger == nil {
		logger = slog.Default()
	}

	l1, err := cache.NewMemoryCache[string, any](cfg.CacheCapacity, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build dashboard cache: %w", err)
	}

	s := &Service{
		query:        query,
		l1:           l1,
		historyLimit: cfg.HistoryLimit,
		logger:       logger,
		now:          time.Now,
	}
	if s.historyLimit < 1 {
		s.historyLimit = 100
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StatusDistribution returns the customer count per tag, every tag included.
func (s *Service) StatusDistribution(ctx context.Context) ([]lifecycle.TagCount, error) {
	return cached(ctx, s, keyDistribution, s.query.StatusDistribution, slices.Clone[[]lifecycle.TagCount])
}

// TransitionAnalytics aggregates the transitions of the last days days,
// counted from the start of today (UTC).
func (s *Service) TransitionAnalytics(ctx context.Context, days int) ([]lifecycle.EdgeStat, error) {
	if days < 1 || days > MaxWindowDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidWindow, MaxWindowDays, days)
	}
	since := s.windowStart(days)
	return cached(ctx, s, fmt.Sprintf("transitions:%d", days), func(ctx context.Context) ([]lifecycle.EdgeStat, error) {
		return s.query.TransitionAnalytics(ctx, since)
	}, cloneEdges)
}

// PendingReviewCount is the manual review backlog.
func (s *Service) PendingReviewCount(ctx context.Context) (int64, error) {
	return cached(ctx, s, keyPending, s.query.PendingReviewCount, identity[int64])
}

// CustomerHistory is never cached: operators look at it right after acting.
// limit is clamped to the configured history limit.
func (s *Service) CustomerHistory(ctx context.Context, customerID string, limit int) ([]*lifecycle.Transition, error) {
	if limit < 1 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.query.CustomerHistory(ctx, customerID, limit)
}

// Summary combines the cached aggregates.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	dist, err := s.StatusDistribution(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.PendingReviewCount(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := s.TransitionAnalytics(ctx, 7)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Distribution:   dist,
		PendingReviews: pending,
		GeneratedAt:    s.now().UTC(),
	}
	for _, c := range dist {
		sum.TotalCustomers += c.Count
	}
	for _, e := range edges {
		sum.TransitionsLast7d += e.Total
		sum.AutomaticLast7d += e.Automatic
	}
	return sum, nil
}

// Invalidate drops every cached aggregate.
func (s *Service) Invalidate() {
	s.l1.Clear()
	observability.DashboardCacheItems.Set(0)
}

func (s *Service) Close() {
	s.l1.Close()
}

func (s *Service) windowStart(days int) time.Time {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -days)
}

// cached is a read-through lookup. Failed loads are not cached. Callers get
// a copy made by clone, so mutating a result never reaches the cache.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error), clone func(T) T) (T, error) {
	if v, ok := s.l1.Get(key); ok {
		if typed, ok := v.(T); ok {
			observability.DashboardCacheHits.Inc()
			return clone(typed), nil
		}
	}
	observability.DashboardCacheMisses.Inc()

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("dashboard %s: %w", key, err)
	}

	s.l1.Set(key, v)
	observability.DashboardCacheItems.Set(float64(s.l1.Len()))
	s.logger.Debug("dashboard aggregate refreshed", slog.String("key", key))
	return clone(v), nil
}

func identity[T any](v T) T { return v }

// cloneEdges also copies AvgConfidence, which is a pointer.
func cloneEdges(edges []lifecycle.EdgeStat) []lifecycle.EdgeStat {
	out := slices.Clone(edges)
	for i := range out {
		if c := out[i].AvgConfidence; c != nil {
			v := *c
			out[i].AvgConfidence = &v
		}
	}
	return out
}
