package activity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activitymod "github.com/storify-asia/storify/modules/activity"
	"github.com/storify-asia/storify/pkg/activity"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/session"
)

type recorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *recorder) WriteBatch(_ context.Context, entries []activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *recorder) all() []activity.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]activity.Entry(nil), r.entries...)
}

func TestLog(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	sink := activity.NewSink(rec, logger.Nop(), activity.Options{FlushEvery: 10 * time.Millisecond})

	r := chi.NewRouter()
	activitymod.New(sink, logger.Nop()).Routes(r)

	post := func(body string, userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/activity/log", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if userID != "" {
			req = req.WithContext(session.WithSession(req.Context(), &session.Session{UserID: userID}))
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, post(`{"action":"play","resourceType":"book","resourceId":3}`, ""))
	assert.Equal(t, http.StatusAccepted, post(`{"action":"play","resourceType":"book","resourceId":3,"metadata":{"position":12}}`, "u-1"))
	assert.Equal(t, http.StatusAccepted, post(`{"action":"share","resourceType":"book","resourceId":"7"}`, "u-2"))
	assert.Equal(t, http.StatusBadRequest, post(`{"action":`, "u-1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))

	entries := rec.all()
	require.Len(t, entries, 2)
	assert.Equal(t, "u-1", entries[0].UserID)
	assert.Equal(t, "3", entries[0].ResourceID)
	assert.Equal(t, float64(12), entries[0].Metadata["position"])
	assert.Equal(t, "u-2", entries[1].UserID)
	assert.Equal(t, "7", entries[1].ResourceID)
}
