package ratelimiter

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/storify-asia/storify/pkg/clientip"
	"github.com/storify-asia/storify/pkg/logger"
)

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(r *http.Request) string

// ByIP keys buckets by client address under a scope, so separate limiters
// sharing a store do not collide.
func ByIP(scope string) KeyFunc {
	return func(r *http.Request) string {
		ip := clientip.FromContext(r.Context())
		if ip == "" {
			ip = clientip.FromRequest(r)
		}
		return scope + ":" + ip
	}
}

// Middleware answers 429 once the caller's bucket is empty. When the store
// fails the request is let through and the error is logged.
func Middleware(b *Bucket, key KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := b.Allow(r.Context(), key(r))
			if err != nil {
				if log != nil {
					log.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter().Seconds()))))
				h.Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"message": "Too many requests",
					"code":    "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
