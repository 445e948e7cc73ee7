package logging

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// New creates a new zap logger
func New() *zap.SugaredLogger {
	logger := zap.NewExample()
	defer logger.Sync()
	return logger.Sugar()
}

// WithLogger returns a copy of ctx carrying logger
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request scoped logger, or the global one
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}
	return zap.S()
}
