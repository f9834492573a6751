package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/tagflow/internal/logger"
	"github.com/rafaeljc/tagflow/internal/observability"
)

// Probes bundles the HTTP observability server and the optional gRPC
// health service of one binary.
type Probes struct {
	http *observability.Server
	grpc *observability.HealthServer
}

// StartProbes starts the metrics/probe server and, when enabled, the gRPC
// health service. Both report the readiness of the runtime's dependencies.
func (r *Runtime) StartProbes(ctx context.Context) (*Probes, error) {
	checkers := r.Checkers()

	p := &Probes{
		http: observability.NewServer(logger.Component(r.Logger, "observability"), &r.Config.Observability, checkers...),
	}
	p.http.Start()

	if r.Config.Server.GRPC.Enabled {
		p.grpc = observability.NewHealthServer(logger.Component(r.Logger, "grpc_health"), &r.Config.Server.GRPC, checkers...)
		if err := p.grpc.Start(ctx); err != nil {
			_ = p.http.Shutdown(ctx)
			return nil, fmt.Errorf("failed to start grpc health server: %w", err)
		}
	}
	return p, nil
}

// Shutdown stops both servers and joins their errors.
func (p *Probes) Shutdown(ctx context.Context) error {
	var errs []error
	if p.grpc != nil {
		if err := p.grpc.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("grpc health: %w", err))
		}
	}
	if err := p.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}
	return errors.Join(errs...)
}

// LogShutdown is the deferred form of Shutdown used by the binaries.
func (p *Probes) LogShutdown(ctx context.Context, log *slog.Logger) {
	if err := p.Shutdown(ctx); err != nil {
		log.Error("probe shutdown failed", slog.Any("error", err))
	}
}
