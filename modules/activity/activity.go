// Package activity accepts client-side activity events for signed-in users.
package activity

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/activity"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/pkg/session"
)

type Sink interface {
	Log(ctx context.Context, e activity.Entry) bool
}

type Module struct {
	sink   Sink
	errors handler.ErrorHandler[handler.Context]
}

func New(sink Sink, log *slog.Logger) *Module {
	return &Module{sink: sink, errors: handler.NewErrorHandler(log)}
}

// Routes mounts POST /activity/log.
func (m *Module) Routes(r chi.Router) {
	r.Post("/activity/log", handler.Wrap(m.log,
		handler.WithBinders[handler.Context, logRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, logRequest](m.errors),
	))
}

type logRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   any            `json:"resourceId"`
	Metadata     map[string]any `json:"metadata"`
}

type acceptedResponse struct {
	Success bool `json:"success"`
}

// log answers 202 whether or not the entry was kept. Anonymous calls and
// entries dropped by a full buffer are silently discarded.
func (m *Module) log(ctx handler.Context, req logRequest) handler.Response {
	if userID := session.UserIDFromContext(ctx); userID != "" && req.Action != "" {
		m.sink.Log(ctx, activity.Entry{
			UserID:       userID,
			Action:       req.Action,
			ResourceType: req.ResourceType,
			ResourceID:   resourceID(req.ResourceID),
			Metadata:     req.Metadata,
		})
	}
	return handler.JSON(acceptedResponse{Success: true}, handler.WithJSONStatus(http.StatusAccepted))
}

// resourceID accepts both numeric and string ids from clients.
func resourceID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(id)
	}
	return ""
}
