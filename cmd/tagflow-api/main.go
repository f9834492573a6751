// Package main runs the tagflow control API.
//
// It is the composition root for the operator-facing HTTP API: rule catalog,
// evaluations, manual transitions, the review queue and the dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/tagflow/internal/app"
	"github.com/rafaeljc/tagflow/internal/config"
	"github.com/rafaeljc/tagflow/internal/controlapi"
	"github.com/rafaeljc/tagflow/internal/dashboard"
	"github.com/rafaeljc/tagflow/internal/database"
	"github.com/rafaeljc/tagflow/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App).With(slog.String("service", "tagflow-api"))
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
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

	// -------------------------------------------------------------------------
	// 3. Wiring
	// -------------------------------------------------------------------------
	dash, err := dashboard.New(logger.Component(log, "dashboard"), cfg.Dashboard, rt.Store)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}
	defer dash.Close()

	apiCfg := cfg.Server.API
	skipAuth := apiCfg.APIKeyHash == "" && cfg.App.Environment != config.EnvironmentProduction
	if skipAuth {
		log.Warn("API authentication disabled: no API key hash configured")
	}

	api := controlapi.NewAPIWithConfig(
		logger.Component(log, "controlapi"),
		rt.Lifecycle,
		dash,
		rt.Store,
		apiCfg.APIKeyHash,
		skipAuth,
		controlapi.WithMaxBodyBytes(apiCfg.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              apiCfg.Addr(),
		Handler:           api.Router,
		ReadTimeout:       apiCfg.ReadTimeout,
		ReadHeaderTimeout: apiCfg.ReadHeaderTimeout,
		WriteTimeout:      apiCfg.WriteTimeout,
		IdleTimeout:       apiCfg.IdleTimeout,
		MaxHeaderBytes:    apiCfg.MaxHeaderBytes,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	// -------------------------------------------------------------------------
	// 4. Serve until a signal arrives
	// -------------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("control API listening", slog.String("addr", srv.Addr), slog.Bool("tls", apiCfg.TLSEnabled))

		var err error
		if apiCfg.TLSEnabled {
			err = srv.ListenAndServeTLS(apiCfg.TLSCert, apiCfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", slog.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		probes.LogShutdown(shutdownCtx, log)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("service exited successfully")
	return nil
}
