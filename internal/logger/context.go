package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext stores logger in ctx. The API middleware uses it to attach a
// request-scoped logger; the sweeper attaches one per run.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext never returns nil; it falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// With enriches the context logger with args and stores the result.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx).With(args...)
	return WithContext(ctx, l), l
}
