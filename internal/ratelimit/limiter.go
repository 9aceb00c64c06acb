package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

// store is the persistence interface for window counters.
type store interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Limiter is a fixed-window request limiter per user over a shared counter store.
// Counters are keyed by window start, so every instance sees the same window.
type Limiter struct {
	store  store
	limit  int64
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New creates a limiter allowing limit requests per window.
func New(s store, limit int64, window time.Duration, logger *zap.Logger) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: s, limit: limit, window: window, now: time.Now, logger: logger}
}

func (l *Limiter) key(user string, start time.Time) string {
	return fmt.Sprintf("%sratelimit:%s:%d", domain.KeyPrefix, user, start.Unix())
}

// Allow counts one request for user. Over the limit it returns ErrRateLimited and
// the time left in the window. Store failures fail open.
func (l *Limiter) Allow(ctx context.Context, user string) (time.Duration, error) {
	if l.limit <= 0 {
		return 0, nil
	}

	now := l.now().UTC()
	start := now.Truncate(l.window)
	key := l.key(user, start)

	n, err := l.store.IncrBy(ctx, key, 1)
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, allowing request", zap.String("user", user), zap.Error(err))
		return 0, nil
	}
	if n == 1 {
		// TTL covers the rest of the window plus slack for clock skew between instances.
		if err := l.store.Expire(ctx, key, 2*l.window, true); err != nil {
			l.logger.Warn("Failed to set rate limit expiry", zap.String("key", key), zap.Error(err))
		}
	}
	if n > l.limit {
		return start.Add(l.window).Sub(now), domain.ErrRateLimited
	}
	return 0, nil
}

// Limit returns the requests allowed per window.
func (l *Limiter) Limit() int64 { return l.limit }
