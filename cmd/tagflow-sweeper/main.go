// Package main runs the tagflow sweeper: the once-a-day evaluation of every
// active customer. Replicas coordinate through a Redis lock per shard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/database"
	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App).With(
		slog.String("service", "tagflow-sweeper"),
		slog.String("shard", sweeper.ShardName(cfg.Sweeper)),
	)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	rt, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error("failed to close runtime", slog.Any("error", err))
		}
	}()

	go database.RunPoolMonitor(ctx, rt.Pool, cfg.Database.MonitorInterval)

	probes, err := rt.StartProbes(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		probes.LogShutdown(shutdownCtx, log)
	}()

	if !cfg.Sweeper.Enabled {
		log.Warn("sweeper disabled, serving probes only")
		<-ctx.Done()
		return nil
	}

	// Run blocks until the signal context is cancelled. An in-flight sweep
	// stops between customers and reports itself as cancelled.
	if err := rt.Sweeper().Run(ctx); err != nil {
		return fmt.Errorf("sweeper failed: %w", err)
	}

	log.Info("service exited successfully")
	return nil
}
