// Package controlapi implements the operator REST API: rule inspection,
// on-demand evaluation, manual transitions, the review queue and the
// reporting aggregates.
package controlapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/rafaeljc/tagflow/internal/dashboard"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/validation"
)

// Lifecycle is the subset of lifecycle.Service the API drives.
type Lifecycle interface {
	Catalog() *ruleengine.Catalog
	Evaluate(ctx context.Context, customerID string) (*ruleengine.Evaluation, error)
	Apply(ctx context.Context, req lifecycle.ApplyRequest) *lifecycle.StatusTransitionResult
	ResolveReview(ctx context.Context, id int64, decision lifecycle.ReviewDecision, operator string) (*lifecycle.ReviewOutcome, error)
}

// Dashboard serves the cached reporting aggregates.
type Dashboard interface {
	StatusDistribution(ctx context.Context) ([]lifecycle.TagCount, error)
	TransitionAnalytics(ctx context.Context, days int) ([]lifecycle.EdgeStat, error)
	CustomerHistory(ctx context.Context, customerID string, limit int) ([]*lifecycle.Transition, error)
	Summary(ctx context.Context) (*dashboard.Summary, error)
	Invalidate()
}

// ReviewLister lists the pending manual reviews.
type ReviewLister interface {
	ListPending(ctx context.Context, limit int) ([]*lifecycle.Review, error)
}

var (
	_ Lifecycle    = (*lifecycle.Service)(nil)
	_ Dashboard    = (*dashboard.Service)(nil)
	_ ReviewLister = (lifecycle.ReviewQueue)(nil)
)

// API holds the router and its dependencies.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	lifecycle Lifecycle
	dashboard Dashboard
	reviews   ReviewLister
	validate  *validator.Validate
	logger    *slog.Logger

	// apiKeyHash is the hex SHA-256 of the valid API key.
	apiKeyHash string

	// skipAuth disables authentication (tests and local development only).
	skipAuth bool

	// maxBodyBytes caps request bodies; zero means no limit.
	maxBodyBytes int64
}

// Option customizes an API.
type Option func(*API)

// WithMaxBodyBytes caps JSON request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) { a.maxBodyBytes = n }
}

// NewAPI creates an API with authentication enabled. apiKeyHash must be the
// hex SHA-256 of the API key.
func NewAPI(logger *slog.Logger, lc Lifecycle, dash Dashboard, reviews ReviewLister, apiKeyHash string, opts ...Option) *API {
	return NewAPIWithConfig(logger, lc, dash, reviews, apiKeyHash, false, opts...)
}

// NewAPIWithConfig creates an API with explicit control over authentication.
//
// Panics if a dependency is nil, or if apiKeyHash is empty while
// authentication is enabled.
func NewAPIWithConfig(logger *slog.Logger, lc Lifecycle, dash Dashboard, reviews ReviewLister, apiKeyHash string, skipAuth bool, opts ...Option) *API {
	validation.AssertPresent(lc, "controlapi lifecycle service")
	validation.AssertPresent(dash, "controlapi dashboard service")
	validation.AssertPresent(reviews, "controlapi review queue")
	if !skipAuth && apiKeyHash == "" {
		panic("controlapi: apiKeyHash cannot be empty when authentication is enabled")
	}
	if logger == nil {
		logger = slog.Default()
	}

	api := &API{
		Router:     chi.NewRouter(),
		lifecycle:  lc,
		dashboard:  dash,
		reviews:    reviews,
		validate:   newValidator(),
		logger:     logger,
		apiKeyHash: apiKeyHash,
		skipAuth:   skipAuth,
	}
	for _, opt := range opts {
		opt(api)
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.RequestLogger)
	a.Router.Use(Metrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Route not found")
	})

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)
		if a.maxBodyBytes > 0 {
			r.Use(middleware.RequestSize(a.maxBodyBytes))
		}

		r.Get("/rules", a.handleListRules)

		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/evaluation", a.handleEvaluate)
			r.Get("/transitions", a.handleHistory)
			r.Post("/transitions", a.handleApply)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/summary", a.handleSummary)
			r.Get("/distribution", a.handleDistribution)
			r.Get("/transitions", a.handleTransitionAnalytics)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", a.handleListReviews)
			r.Post("/{id}/resolve", a.handleResolveReview)
		})
	})
}

// handleHealthCheck reports that the process is serving HTTP. Dependency
// readiness lives on the observability server.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
