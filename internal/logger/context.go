package logger

import (
	"context"

	"go.uber.org/zap"
)

// loggerContextKey is the private key type used to store a logger in a context.
type loggerContextKey struct{}

// ToContext returns a context carrying the provided logger.
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger stored in the context,
// falling back to the global logger when none is present.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerContextKey{}).(*zap.SugaredLogger); ok {
		return l
	}

	return global
}

// WithName returns a context whose logger is named after the component.
func WithName(ctx context.Context, name string) context.Context {
	return ToContext(ctx, FromContext(ctx).Named(name))
}
