// Package listening exposes the listening gate: the current decision for a
// caller and the record call clients make when playback starts.
package listening

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/svc/entitlement"
	"github.com/storify-asia/storify/svc/identity"
)

// Gate is the part of entitlement.Service the endpoints use.
type Gate interface {
	Evaluate(ctx context.Context, id identity.Identity) (entitlement.Status, error)
	Play(ctx context.Context, id identity.Identity, bookID int64) (entitlement.Status, error)
}

type Module struct {
	gate   Gate
	errors handler.ErrorHandler[handler.Context]
}

func New(gate Gate, log *slog.Logger) *Module {
	return &Module{gate: gate, errors: handler.NewErrorHandler(log)}
}

// Routes registers the listening status and record endpoints. Both accept
// users and anonymous visitors.
func (m *Module) Routes(r chi.Router) {
	r.Get("/listening/status", handler.Wrap(m.status,
		handler.WithBinders[handler.Context, statusRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, statusRequest](m.errors),
	))
	r.Post("/listening/record", handler.Wrap(m.record,
		handler.WithBinders[handler.Context, recordRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, recordRequest](m.errors),
	))
}

type statusRequest struct {
	VisitorID string `query:"visitorId"`
}

func (m *Module) status(ctx handler.Context, _ statusRequest) handler.Response {
	st, err := m.gate.Evaluate(ctx, identity.FromRequest(ctx.Request(), ""))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(st)
}

type recordRequest struct {
	BookID    int64  `json:"bookId"`
	VisitorID string `json:"visitorId"`
}

type recordResponse struct {
	Success bool               `json:"success"`
	Status  entitlement.Status `json:"status"`
}

type deniedResponse struct {
	Message string             `json:"message"`
	Status  entitlement.Status `json:"status"`
}

func (m *Module) record(ctx handler.Context, req recordRequest) handler.Response {
	if req.BookID <= 0 {
		return handler.Error(handler.ErrBadRequest.WithMessage("Book ID is required"))
	}

	st, err := m.gate.Play(ctx, identity.FromRequest(ctx.Request(), req.VisitorID), req.BookID)
	if denied, ok := entitlement.IsDenied(err); ok {
		return handler.JSON(deniedResponse{Message: "Listening limit reached", Status: denied.Status},
			handler.WithJSONStatus(http.StatusForbidden))
	}
	if errors.Is(err, entitlement.ErrInvalidContent) {
		return handler.Error(handler.ErrBadRequest.WithMessage("Book ID is required"))
	}
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(recordResponse{Success: true, Status: st})
}
