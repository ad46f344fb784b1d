package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/metrics"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.ListeningDecision("guest_limit", false)
	m.ListeningDecision("guest_limit", false)
	m.PaymentCreated("doku", nil)
	m.PaymentCreated("doku", errors.New("boom"))
	m.Activation()

	assert.InDelta(t, 2, testutil.ToFloat64(m.ListeningDecisions.WithLabelValues("guest_limit", "denied")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PaymentsCreated.WithLabelValues("doku", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Activations), 0)
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ListeningDecision("no_limit", true)
		m.PaymentTransition("paid", "webhook")
		m.WebhookVerification("xendit", false)
		m.Activation()
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.WebhookVerification("xendit", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `storify_webhook_verifications_total{gateway="xendit",result="valid"} 1`)
}
