package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/storify-asia/storify/pkg/logger"
)

// HealthCheckHandler answers liveness probes when no checks are given and
// readiness probes otherwise. Any failing check yields 503 NOT_READY.
func HealthCheckHandler(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if len(checks) == 0 {
			_, _ = w.Write([]byte("ALIVE"))
			return
		}
		_, _ = w.Write([]byte("READY"))
	}
}
