package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/tagflow/internal/config"
)

// HealthServer serves grpc.health.v1.Health for orchestrators that probe
// over gRPC. The overall ("") status and one status per checker name are
// refreshed from the readiness checkers every HealthInterval.
type HealthServer struct {
	logger   *slog.Logger
	cfg      *config.GRPCConfig
	checkers []Checker
	health   *health.Server
	server   *grpc.Server
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHealthServer builds the server; nothing listens until Start or Serve.
func NewHealthServer(logger *slog.Logger, cfg *config.GRPCConfig, checkers ...Checker) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RequestLoggerInterceptor(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range checkers {
		hs.SetServingStatus(c.Name(), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	healthpb.RegisterHealthServer(server, hs)

	return &HealthServer{
		logger:   logger,
		cfg:      cfg,
		checkers: checkers,
		health:   hs,
		server:   server,
	}
}

// Start listens on the configured address and serves in the background.
func (h *HealthServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(h.cfg.Host, h.cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	h.Serve(ctx, lis)
	return nil
}

// Serve serves on lis in the background and starts the refresh loop.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) {
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	h.Refresh(ctx)
	go h.watch(ctx)

	go func() {
		h.logger.Info("starting grpc health server", slog.String("addr", lis.Addr().String()))
		if err := h.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			h.logger.Error("grpc health server failed", slog.String("error", err.Error()))
		}
	}()
}

// Refresh runs the checkers once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout())
	defer cancel()

	failures := CheckAll(checkCtx, h.checkers)
	for _, c := range h.checkers {
		status := healthpb.HealthCheckResponse_SERVING
		if err, failed := failures[c.Name()]; failed {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("dependency unhealthy", slog.String("component", c.Name()), slog.String("error", err.Error()))
		}
		h.health.SetServingStatus(c.Name(), status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if len(failures) > 0 {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", overall)
}

func (h *HealthServer) watch(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING, stops the refresh loop and drains
// in-flight RPCs until ctx expires.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	h.logger.Info("stopping grpc health server")
	h.health.Shutdown()
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}

	stopped := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		h.server.Stop()
		return ctx.Err()
	}
}

func (h *HealthServer) checkTimeout() time.Duration {
	if h.cfg.HealthInterval > 0 && h.cfg.HealthInterval < 5*time.Second {
		return h.cfg.HealthInterval
	}
	return 5 * time.Second
}
