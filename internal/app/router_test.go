package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/metrics"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/subscription"
)

func newTestApp(t *testing.T, limits RateLimitConfig) http.Handler {
	t.Helper()

	subs := subscription.NewService(subscription.NewMemoryStore(
		subscription.Plan{Name: "Bulanan", Price: 49000, DurationDays: 30, IsActive: true},
	))
	a := &App{
		cfg:           Config{CORSOrigins: []string{"*"}, RateLimit: limits},
		log:           logger.Nop(),
		metrics:       metrics.New(),
		sessions:      session.NewManager(session.Config{}),
		subscriptions: subs,
		payments:      payment.NewManager(payment.NewMemoryStore(), subs),
	}
	require.NoError(t, a.buildLimits())
	t.Cleanup(func() {
		_ = a.sessions.Close()
		if a.limitStore != nil {
			a.limitStore.Close()
		}
	})
	return a.routes()
}

func send(h http.Handler, method, target, body string) int {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRoutesRateLimit(t *testing.T) {
	t.Parallel()

	limits := RateLimitConfig{
		Enabled:            true,
		APICapacity:        3,
		APIRefillRate:      1,
		APIRefillInterval:  time.Hour,
		AuthCapacity:       1,
		AuthRefillRate:     1,
		AuthRefillInterval: time.Hour,
	}

	t.Run("gateway callbacks are never limited", func(t *testing.T) {
		t.Parallel()
		h := newTestApp(t, limits)

		codes := map[int]int{}
		for range 20 {
			codes[send(h, http.MethodPost, "/api/webhook/xendit", `{"id":"inv-1"}`)]++
		}
		assert.Equal(t, map[int]int{http.StatusOK: 20}, codes)

		// the callbacks did not drain the caller's API budget either
		assert.Equal(t, http.StatusOK, send(h, http.MethodGet, "/api/subscription/plans", ""))
	})

	t.Run("api routes are limited per client", func(t *testing.T) {
		t.Parallel()
		h := newTestApp(t, limits)

		for range 3 {
			require.Equal(t, http.StatusOK, send(h, http.MethodGet, "/api/subscription/plans", ""))
		}
		assert.Equal(t, http.StatusTooManyRequests, send(h, http.MethodGet, "/api/subscription/plans", ""))
		assert.Equal(t, http.StatusOK, send(h, http.MethodPost, "/api/webhook/paddle", `{}`))
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		h := newTestApp(t, RateLimitConfig{})

		for range 10 {
			require.Equal(t, http.StatusOK, send(h, http.MethodGet, "/api/subscription/plans", ""))
		}
	})
}
