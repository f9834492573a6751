package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here, so each binary registers the
// full set (the API exposes zero-valued sweeper series and vice versa).

// namespace defines the global prefix for all metrics (e.g., tagflow_...).
const namespace = "tagflow"

// sweepBuckets covers sweeps from a few seconds up to several hours.
var sweepBuckets = []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200, 14400}

var (
	// -------------------------------------------------------------------------
	// API (HTTP)
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: tagflow_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// APIReqTotal counts the total number of HTTP requests.
	// Metric: tagflow_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the API",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// gRPC (health)
	// -------------------------------------------------------------------------

	GrpcReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// LIFECYCLE (Evaluate / Apply)
	// -------------------------------------------------------------------------

	// EvaluationsTotal counts evaluations by outcome.
	// Metric: tagflow_lifecycle_evaluations_total
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "evaluations_total",
		Help:      "Total customer evaluations",
	}, []string{"outcome"}) // recommended, review, none, error

	// TransitionsTotal counts apply attempts.
	// Metric: tagflow_lifecycle_transitions_total
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Total transition apply attempts",
	}, []string{"applied_by", "status"}) // applied_by: auto, manual; status: success, rejected, error

	// ActionFailuresTotal counts best-effort side effects that failed after commit.
	ActionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "action_failures_total",
		Help:      "Total tag-entry actions that failed to dispatch",
	}, []string{"action"})

	ReviewsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "reviews_enqueued_total",
		Help:      "Total evaluations routed to manual review",
	})

	// -------------------------------------------------------------------------
	// SWEEPER (Workers)
	// -------------------------------------------------------------------------

	// SweepDuration measures wall-clock time of a full daily sweep.
	// Metric: tagflow_sweeper_sweep_duration_seconds
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "sweep_duration_seconds",
		Help:      "Wall-clock duration of the daily evaluation sweep",
		Buckets:   sweepBuckets,
	})

	SweepCustomersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "customers_total",
		Help:      "Total customers processed by the sweep",
	}, []string{"action"}) // applied, manual_review, no_change, error, skipped_terminal

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "runs_total",
		Help:      "Total sweep runs",
	}, []string{"status"}) // success, cancelled, failed, locked

	SweepLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last completed sweep",
	})

	// -------------------------------------------------------------------------
	// DASHBOARD (L1 cache)
	// -------------------------------------------------------------------------

	DashboardCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "l1_cache_hits_total",
		Help:      "Total dashboard L1 cache hits (in-memory)",
	})

	DashboardCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "l1_cache_misses_total",
		Help:      "Total dashboard L1 cache misses",
	})

	// DashboardCacheItems reports item count; S3-FIFO (Otter) tracks items, not bytes.
	DashboardCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dashboard",
		Name:      "l1_cache_items_count",
		Help:      "Current number of items in the dashboard L1 cache",
	})

	// -------------------------------------------------------------------------
	// OUTBOX (Redis)
	// -------------------------------------------------------------------------

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Total messages pushed to downstream Redis queues",
	}, []string{"queue", "status"}) // status: success, fail

	// -------------------------------------------------------------------------
	// DATABASE (pgxpool)
	// -------------------------------------------------------------------------

	// DBPoolConnections is sampled by database.RunPoolMonitor.
	// Metric: tagflow_database_pool_connections{state="total|idle|in_use|max"}
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Connections in the Postgres pool by state",
	}, []string{"state"})

	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions",
	})

	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Total acquisitions that had to wait for a free connection",
	})
)
