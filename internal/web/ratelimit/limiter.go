// Package ratelimit throttles expensive requests per caller.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/web/response"
)

// Limiter decides whether the caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info describes the limit state after one Allow call
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// KeyFunc extracts the caller key of a request; an empty key is not limited
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429. Limiter failures are
// logged and the request is let through.
func Middleware(l Limiter, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}
			info, err := l.Allow(r.Context(), k)
			if err != nil {
				logger.Warn("rate limit check failed", zap.String("key", k), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
			if !info.Allowed {
				retry := time.Until(info.ResetAt).Round(time.Second)
				if retry < time.Second {
					retry = time.Second
				}
				h.Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				response.RenderError(w, http.StatusTooManyRequests,
					fmt.Errorf("too many requests, retry in %s", retry))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
