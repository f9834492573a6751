// Package database owns the PostgreSQL connection pool: construction from
// config, readiness checks, and pool statistics export.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/observability"
)

// NewPostgresPool builds a pool from cfg and pings it until it answers or
// cfg.PingMaxRetries attempts have failed.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pingWithRetry(ctx, pool, cfg); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("connected to postgres",
		slog.Int("max_conns", cfg.MaxConns),
		slog.String("application_name", cfg.ApplicationName),
	)
	return pool, nil
}

func pingWithRetry(ctx context.Context, pool *pgxpool.Pool, cfg *config.DatabaseConfig) error {
	attempts := max(cfg.PingMaxRetries, 1)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = pool.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}
		slog.Warn("postgres ping failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", lastErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(cfg.PingBackoff):
		}
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, lastErr)
}

// RunPoolMonitor samples pool statistics every interval until ctx is done.
// Cumulative pgx counters are exported as deltas so the Prometheus counters
// stay monotonic.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last poolTotals
	for {
		last = exportPoolStats(pool.Stat(), last)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type poolTotals struct {
	acquires int64
	waits    int64
	acquire  time.Duration
}

func exportPoolStats(s *pgxpool.Stat, last poolTotals) poolTotals {
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))

	now := poolTotals{
		acquires: s.AcquireCount(),
		waits:    s.EmptyAcquireCount(),
		acquire:  s.AcquireDuration(),
	}
	if d := now.acquires - last.acquires; d > 0 {
		observability.DBPoolAcquireCount.Add(float64(d))
	}
	if d := now.waits - last.waits; d > 0 {
		observability.DBPoolWaitCount.Add(float64(d))
	}
	if d := now.acquire - last.acquire; d > 0 {
		observability.DBPoolAcquireDuration.Add(d.Seconds())
	}
	return now
}
