package log

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext stores a logger in ctx. Request-scoped fields (request id,
// owner id) travel this way from middleware to handlers.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by WithContext, or one built on the
// process default when there is none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	base := slog.Default()
	return &Logger{
		Logger:    base.With(FieldComponent, ComponentApp),
		base:      base,
		component: ComponentApp,
	}
}
