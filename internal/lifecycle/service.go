// Package lifecycle implements the customer status-tag use cases: evaluating a
// customer against the rule catalog and committing transitions with their
// side effects. Storage and delivery are reached through the ports in ports.go.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/validation"
)

// Dependencies groups the ports the Service needs. Every field is mandatory.
type Dependencies struct {
	Profiles     ProfileStore
	Metrics      MetricsStore
	Transitions  TransitionStore
	Reviews      ReviewQueue
	Notifier     Notifier
	Content      ContentUnlocker
	Certificates CertificateIssuer
	Campaigns    CampaignStarter
	Analytics    AnalyticsSink
}

// Service evaluates customers and applies transitions.
type Service struct {
	logger  *slog.Logger
	catalog *ruleengine.Catalog
	engine  *ruleengine.Engine
	deps    Dependencies
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now (tests pin the evaluation day with it).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new lifecycle Service.
// It panics if the catalog, the engine or any port is missing, including a
// port holding a typed nil.
func New(logger *slog.Logger, catalog *ruleengine.Catalog, engine *ruleengine.Engine, deps Dependencies, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	validation.AssertNotNil(catalog, "rule catalog")
	validation.AssertNotNil(engine, "rule engine")
	validation.AssertPresent(deps.Profiles, "profile store")
	validation.AssertPresent(deps.Metrics, "metrics store")
	validation.AssertPresent(deps.Transitions, "transition store")
	validation.AssertPresent(deps.Reviews, "review queue")
	validation.AssertPresent(deps.Notifier, "notifier")
	validation.AssertPresent(deps.Content, "content unlocker")
	validation.AssertPresent(deps.Certificates, "certificate issuer")
	validation.AssertPresent(deps.Campaigns, "campaign starter")
	validation.AssertPresent(deps.Analytics, "analytics sink")

	s := &Service{
		logger:  logger,
		catalog: catalog,
		engine:  engine,
		deps:    deps,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the injected rule catalog.
func (s *Service) Catalog() *ruleengine.Catalog {
	return s.catalog
}

// Evaluate fetches the customer's profile and fresh metrics and scores every
// applicable rule. It has no side effects besides logging and metrics.
func (s *Service) Evaluate(ctx context.Context, customerID string) (*ruleengine.Evaluation, error) {
	profile, err := s.deps.Profiles.GetProfile(ctx, customerID)
	if err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evaluate %s: fetch profile: %w", customerID, err)
	}
	return s.EvaluateProfile(ctx, profile)
}

// EvaluateProfile is Evaluate for a profile the caller already holds.
// Metrics are still fetched fresh.
func (s *Service) EvaluateProfile(ctx context.Context, profile *Profile) (*ruleengine.Evaluation, error) {
	metrics, err := s.deps.Metrics.GetMetrics(ctx, profile.ID)
	if err != nil {
		observability.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("evaluate %s: fetch metrics: %w", profile.ID, err)
	}

	eval := s.engine.Evaluate(s.catalog, profile.CurrentTag, metrics, s.now())
	eval.CustomerID = profile.ID

	outcome := "none"
	switch {
	case eval.RequiresManualReview:
		outcome = "review"
	case eval.Recommended != nil:
		outcome = "recommended"
	}
	observability.EvaluationsTotal.WithLabelValues(outcome).Inc()

	s.logger.Debug("customer evaluated",
		slog.String("customer_id", profile.ID),
		slog.String("current_tag", string(profile.CurrentTag)),
		slog.String("outcome", outcome),
		slog.Float64("confidence", eval.Confidence),
	)

	return &eval, nil
}
