package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey struct{}

// scope is the request logger. Fields added by inner handlers are visible to
// the middleware that created it, so the canonical request line carries them.
type scope struct {
	mu     sync.RWMutex
	logger *zap.Logger
}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, &scope{logger: logger})
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok {
		return zap.NewNop()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// Annotate adds fields to the logger stored in ctx. No-op without one.
func Annotate(ctx context.Context, fields ...zap.Field) {
	s, ok := ctx.Value(ctxKey{}).(*scope)
	if !ok || len(fields) == 0 {
		return
	}
	s.mu.Lock()
	s.logger = s.logger.With(fields...)
	s.mu.Unlock()
}

// AnnotateUser tags the request logger with the authenticated user.
func AnnotateUser(ctx context.Context, user string) {
	Annotate(ctx, zap.String("user", user))
}

// AnnotateModel tags the request logger with the model the request targets.
func AnnotateModel(ctx context.Context, model string) {
	if model != "" {
		Annotate(ctx, zap.String("model", model))
	}
}
