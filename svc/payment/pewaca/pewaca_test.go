package pewaca_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/payment/pewaca"
)

type fakePewaca struct {
	logins  atomic.Int32
	revoked atomic.Bool
}

func (f *fakePewaca) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ops@storify.test", in["email"])
		n := f.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": "opaque-" + string(rune('0'+n))}})
	})
	authorized := func(r *http.Request) bool {
		if f.revoked.CompareAndSwap(true, false) {
			return false
		}
		return r.Header.Get("Authorization") != ""
	}
	mux.HandleFunc("POST /api/storify-subscription/payment/create/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, float64(11), in["plan_id"])
		assert.Equal(t, "u1", in["storify_user_id"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":              "9b2f",
			"status":          "pending",
			"qris_content":    "00020101021226",
			"qris_invoice_id": "QI-1",
			"expired_at":      "2026-10-19T06:00:00Z",
		})
	})
	mux.HandleFunc("GET /api/storify-subscription/payment/9b2f/", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                    "9b2f",
			"status":                "paid",
			"paid_at":               "2026-10-19T05:10:00Z",
			"payment_customer_name": "AYU",
			"payment_method_by":     "GOPAY",
		})
	})
	return mux
}

func newGateway(t *testing.T) (*pewaca.Gateway, *fakePewaca) {
	t.Helper()
	fake := &fakePewaca{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	gw, err := pewaca.New(pewaca.Config{
		Email:    "ops@storify.test",
		Password: "secret",
		BaseURL:  srv.URL,
		PlanIDs:  map[string]string{"1": "11"},
	}, httpclient.New(httpclient.Config{Timeout: time.Second}))
	require.NoError(t, err)
	return gw, fake
}

func TestCreatePayment(t *testing.T) {
	t.Parallel()
	gw, fake := newGateway(t)

	charge, err := gw.CreatePayment(context.Background(), payment.CreateRequest{
		Reference: "STORIFY-1-AAAA0000",
		UserID:    "u1",
		PlanID:    1,
		Amount:    49000,
		Customer:  payment.Customer{Name: "Ayu", Email: "ayu@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "9b2f", charge.ExternalID)
	assert.Equal(t, "00020101021226", charge.QRContent)
	assert.Empty(t, charge.PaymentURL)
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC), charge.ExpiresAt)

	_, err = gw.CheckStatus(context.Background(), "9b2f")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.logins.Load(), "token is reused between calls")
}

func TestCheckStatusReloginsOnUnauthorized(t *testing.T) {
	t.Parallel()
	gw, fake := newGateway(t)

	_, err := gw.CheckStatus(context.Background(), "9b2f")
	require.NoError(t, err)

	fake.revoked.Store(true)
	upd, err := gw.CheckStatus(context.Background(), "9b2f")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.logins.Load())
	assert.Equal(t, payment.StatusPaid, upd.Status)
	require.NotNil(t, upd.PaidAt)
	assert.Equal(t, "GOPAY", upd.Metadata["paymentMethodBy"])
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := pewaca.New(pewaca.Config{Email: "a@b.c"}, httpclient.New(httpclient.Config{}))
	assert.ErrorIs(t, err, pewaca.ErrNotConfigured)
}
