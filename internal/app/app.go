// Package app wires the shared runtime of the tagflow binaries: the
// Postgres pool, the Redis client, the storage adapters and the lifecycle
// service built on them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tagflow/internal/cache"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/database"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
	"github.com/rafaeljc/tagflow/internal/store"
	"github.com/rafaeljc/tagflow/internal/sweeper"
)

// Runtime holds the connections and services every binary shares.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Store     *store.PostgresStore
	Keys      cache.Keyspace
	Catalog   *ruleengine.Catalog
	Lifecycle *lifecycle.Service
}

// LoadCatalog returns the built-in catalog, or the one in cfg.CatalogFile.
// A malformed file fails here, before anything is evaluated.
func LoadCatalog(cfg config.EngineConfig) (*ruleengine.Catalog, error) {
	if cfg.CatalogFile == "" {
		return ruleengine.DefaultCatalog(), nil
	}

	f, err := os.Open(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	catalog, err := ruleengine.LoadCatalogJSON(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", cfg.CatalogFile, err)
	}
	return catalog, nil
}

// NewEngine builds the evaluator with the configured review threshold.
func NewEngine(log *slog.Logger, cfg config.EngineConfig) *ruleengine.Engine {
	return ruleengine.New(logger.Component(log, "ruleengine"), ruleengine.WithReviewThreshold(cfg.ReviewThreshold))
}

// Bootstrap connects to Postgres and Redis and builds the lifecycle service.
// On error every connection opened so far is closed.
func Bootstrap(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	catalog, err := LoadCatalog(cfg.Engine)
	if err != nil {
		return nil, err
	}
	log.Info("rule catalog loaded",
		slog.Int("rules", len(catalog.Rules())),
		slog.String("source", catalogSource(cfg.Engine)),
	)

	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	rdb, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keys := cache.NewKeyspace(cfg.Redis.KeyPrefix)
	pg := store.NewPostgresStore(pool)
	outbox := cache.NewOutbox(rdb, keys, logger.Component(log, "outbox"))

	svc := lifecycle.New(
		logger.Component(log, "lifecycle"),
		catalog,
		NewEngine(log, cfg.Engine),
		lifecycle.Dependencies{
			Profiles:     pg,
			Metrics:      pg,
			Transitions:  pg,
			Reviews:      pg,
			Notifier:     outbox,
			Content:      outbox,
			Certificates: outbox,
			Campaigns:    outbox,
			Analytics:    cache.NewAnalyticsStream(rdb, keys, cfg.Redis.StreamMaxLen),
		},
	)

	return &Runtime{
		Config:    cfg,
		Logger:    log,
		Pool:      pool,
		Redis:     rdb,
		Store:     pg,
		Keys:      keys,
		Catalog:   catalog,
		Lifecycle: svc,
	}, nil
}

// Checkers are the readiness dependencies.
func (r *Runtime) Checkers() []observability.Checker {
	return []observability.Checker{
		database.NewHealthChecker(r.Pool),
		observability.CheckFunc("redis", func(ctx context.Context) error {
			return r.Redis.Ping(ctx).Err()
		}),
	}
}

// Sweeper builds the sweep service with its Redis coordinator.
func (r *Runtime) Sweeper() *sweeper.Service {
	cfg := r.Config.Sweeper
	coord := cache.NewSweepCoordinator(r.Redis, r.Keys, sweeper.ShardName(cfg))
	return sweeper.New(logger.Component(r.Logger, "sweeper"), cfg, r.Store, r.Lifecycle, coord)
}

// Close releases the connections.
func (r *Runtime) Close() error {
	r.Pool.Close()
	if err := r.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("failed to close redis: %w", err)
	}
	return nil
}

func catalogSource(cfg config.EngineConfig) string {
	if cfg.CatalogFile == "" {
		return "builtin"
	}
	return cfg.CatalogFile
}
