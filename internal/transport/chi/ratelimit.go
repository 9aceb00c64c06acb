package chi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

// RateLimitMiddleware rejects callers over their per-window request budget.
// It must run after AuthMiddleware.
func RateLimitMiddleware(l RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	limit := strconv.FormatInt(l.Limit(), 10)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := domain.UserFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", limit)
			retry, err := l.Allow(r.Context(), user.ID)
			if errors.Is(err, domain.ErrRateLimited) {
				secs := int(math.Ceil(retry.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
				return
			}
			if err != nil {
				logger.Warn("Rate limiter failed", zap.String("user", user.ID), zap.Error(err))
			}
			next.ServeHTTP(w, r)
		})
	}
}
