package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/binder"
)

type recordRequest struct {
	BookID    int64    `json:"bookId"`
	VisitorID string   `json:"visitorId" query:"visitorId"`
	Limit     int      `json:"-" query:"limit"`
	Featured  *bool    `json:"-" query:"featured"`
	Tags      []string `json:"-" query:"tags"`
	ID        int64    `json:"-" path:"id"`
}

func TestJSON(t *testing.T) {
	t.Parallel()
	bind := binder.JSON()

	t.Run("decodes body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":7,"visitorId":"v1"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		var req recordRequest
		require.NoError(t, bind(r, &req))
		assert.Equal(t, int64(7), req.BookID)
		assert.Equal(t, "v1", req.VisitorID)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":7,"extra":1}`))
		r.Header.Set("Content-Type", "application/json")

		var req recordRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrFailedToParseJSON)
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bookId":7}{}`))
		r.Header.Set("Content-Type", "application/json")

		var req recordRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrFailedToParseJSON)
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`a=b`))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		var req recordRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrUnsupportedMediaType)
	})

	t.Run("get and empty bodies are skipped", func(t *testing.T) {
		t.Parallel()
		var req recordRequest
		assert.ErrorIs(t, bind(httptest.NewRequest(http.MethodGet, "/", nil), &req), binder.ErrBinderNotApplicable)
		assert.ErrorIs(t, bind(httptest.NewRequest(http.MethodPost, "/", nil), &req), binder.ErrBinderNotApplicable)
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?visitorId=v9&limit=5&featured=true&tags=a,b", nil)
	var req recordRequest
	require.NoError(t, binder.Query()(r, &req))

	assert.Equal(t, "v9", req.VisitorID)
	assert.Equal(t, 5, req.Limit)
	require.NotNil(t, req.Featured)
	assert.True(t, *req.Featured)
	assert.Equal(t, []string{"a", "b"}, req.Tags)
	assert.Zero(t, req.BookID)

	bad := httptest.NewRequest(http.MethodGet, "/?limit=ten", nil)
	assert.ErrorIs(t, binder.Query()(bad, &req), binder.ErrFailedToParseQuery)
}

func TestPath(t *testing.T) {
	t.Parallel()

	params := map[string]string{"id": "42"}
	extract := func(_ *http.Request, name string) string { return params[name] }

	var req recordRequest
	require.NoError(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), &req))
	assert.Equal(t, int64(42), req.ID)

	params["id"] = "abc"
	assert.ErrorIs(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), &req), binder.ErrFailedToParsePath)
	assert.ErrorIs(t, binder.Path(nil)(httptest.NewRequest(http.MethodGet, "/", nil), &req), binder.ErrFailedToParsePath)
}
