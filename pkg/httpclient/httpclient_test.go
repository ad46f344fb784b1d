package httpclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/httpclient"
)

func TestDoJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "k", r.Header.Get("Client-Id"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	t.Cleanup(srv.Close)

	c := httpclient.New(httpclient.Config{})
	var out struct {
		Echo string `json:"echo"`
	}
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"name": "storify"}, &out,
		httpclient.WithHeader("Client-Id", "k"))
	require.NoError(t, err)
	assert.Equal(t, "storify", out.Echo)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c := httpclient.New(httpclient.Config{})

	require.NoError(t, c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, &struct{}{}))
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]int{"a": 1}, nil)
	assert.True(t, httpclient.IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"invalid"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	err := httpclient.New(httpclient.Config{}).DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)
	var apiErr *httpclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid")
	assert.Equal(t, int32(1), calls.Load())
}
