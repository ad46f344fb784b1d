package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/pkg/logger"
)

type echoRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"-" query:"limit"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWrap(t *testing.T) {
	t.Parallel()

	echo := handler.HandlerFunc[handler.Context, echoRequest](func(ctx handler.Context, req echoRequest) handler.Response {
		if req.Name == "" {
			v := handler.NewValidationError()
			v.Add("name", "required")
			return handler.Error(v)
		}
		if req.Name == "missing" {
			return handler.Error(handler.ErrNotFound.WithMessage("Book not found"))
		}
		if req.Name == "boom" {
			return handler.Error(errors.New("db exploded"))
		}
		return handler.JSON(req, handler.WithJSONStatus(http.StatusCreated))
	})

	var logs bytes.Buffer
	h := handler.Wrap(echo,
		handler.WithBinders[handler.Context, echoRequest](binder.JSON(), binder.Query()),
		handler.WithErrorHandler[handler.Context, echoRequest](handler.NewErrorHandler(logger.New(logger.WithOutput(&logs)))),
	)

	call := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/?limit=3", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("success", func(t *testing.T) {
		rec := call(`{"name":"ok"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["name"])
	})

	t.Run("validation error", func(t *testing.T) {
		rec := call(`{"name":""}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "validation_error", body["code"])
		assert.Contains(t, body["details"], "name")
	})

	t.Run("http error with message", func(t *testing.T) {
		rec := call(`{"name":"missing"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "Book not found", body["message"])
		assert.Equal(t, "not_found", body["code"])
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		rec := call(`{"name":"boom"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db exploded")
	})

	t.Run("bind failure is a bad request", func(t *testing.T) {
		rec := call(`{"name":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode(t, rec)["code"])
	})
}

func TestWrapDecoratorsOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) handler.Decorator[handler.Context, struct{}] {
		return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
			return func(ctx handler.Context, req struct{}) handler.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	h := handler.Wrap(
		func(handler.Context, struct{}) handler.Response { return handler.JSON(nil) },
		handler.WithDecorators(mark("outer"), mark("inner")),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestNilResponse(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(handler.Context, struct{}) handler.Response { return nil },
		handler.WithErrorHandler[handler.Context, struct{}](handler.NewErrorHandler(slog.New(slog.DiscardHandler))))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
