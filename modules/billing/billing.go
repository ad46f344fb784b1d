// Package billing exposes subscription plans, payment creation and status,
// and the gateway notification endpoints.
package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/qrcode"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/subscription"
)

const maxNotificationSize = 1 << 20

// Subscriptions is the part of the subscription service the routes use.
type Subscriptions interface {
	Plans(ctx context.Context) ([]subscription.Plan, error)
	Active(ctx context.Context, userID string) (*subscription.Subscription, error)
}

// Payments is implemented by *payment.Manager.
type Payments interface {
	Create(ctx context.Context, p payment.CreateParams) (*payment.Transaction, error)
	Get(ctx context.Context, id int64) (*payment.Transaction, error)
	Reconcile(ctx context.Context, tx *payment.Transaction) *payment.Transaction
	ManualUpdate(ctx context.Context, userID string, id int64, status payment.Status, metadata map[string]any) (*payment.Transaction, error)
	HandleNotification(ctx context.Context, gateway string, header http.Header, body []byte) error
}

type Module struct {
	subs     Subscriptions
	payments Payments
	contacts payment.Contacts
	log      *slog.Logger
	errors   handler.ErrorHandler[handler.Context]
}

// New builds the billing routes. contacts may be nil, in which case charges
// are created without customer details.
func New(subs Subscriptions, payments Payments, contacts payment.Contacts, log *slog.Logger) *Module {
	if log == nil {
		log = logger.Nop()
	}
	return &Module{
		subs:     subs,
		payments: payments,
		contacts: contacts,
		log:      log.With(logger.Component("billing")),
		errors:   handler.NewErrorHandler(log),
	}
}

// Routes registers the plan and payment endpoints. Gateway callbacks are
// registered separately by WebhookRoutes.
func (m *Module) Routes(r chi.Router) {
	r.Get("/subscription/plans", handler.Wrap(m.plans,
		handler.WithErrorHandler[handler.Context, struct{}](m.errors),
	))

	r.Group(func(r chi.Router) {
		r.Use(session.RequireAuth)

		r.Get("/subscription/active", handler.Wrap(m.active,
			handler.WithErrorHandler[handler.Context, struct{}](m.errors),
		))
		r.Post("/payment/create", handler.Wrap(m.create,
			handler.WithBinders[handler.Context, createRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, createRequest](m.errors),
		))
		r.Get("/payment/{transactionId}", handler.Wrap(m.status,
			handler.WithBinders[handler.Context, transactionRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, transactionRequest](m.errors),
		))
		r.Post("/payment/{transactionId}/update", handler.Wrap(m.update,
			handler.WithBinders[handler.Context, updateRequest](binder.Path(chi.URLParam), binder.JSON()),
			handler.WithErrorHandler[handler.Context, updateRequest](m.errors),
		))
	})
}

// WebhookRoutes registers POST /webhook/{gateway}. Mount it outside any
// per-client rate limit: gateways deliver from a handful of addresses and a
// 429 only makes them retry.
func (m *Module) WebhookRoutes(r chi.Router) {
	r.Post("/webhook/{gateway}", m.notification)
}

func (m *Module) plans(ctx handler.Context, _ struct{}) handler.Response {
	plans, err := m.subs.Plans(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(plans)
}

func (m *Module) active(ctx handler.Context, _ struct{}) handler.Response {
	sub, err := m.subs.Active(ctx, session.UserIDFromContext(ctx))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(sub)
}

type createRequest struct {
	PlanID  int64  `json:"planId"`
	Gateway string `json:"gateway"`
}

func (m *Module) create(ctx handler.Context, req createRequest) handler.Response {
	if req.PlanID <= 0 {
		return handler.Error(handler.ErrBadRequest.WithMessage("Plan ID is required"))
	}
	userID := session.UserIDFromContext(ctx)

	var customer payment.Customer
	if m.contacts != nil {
		name, addr, err := m.contacts.Contact(ctx, userID)
		if err != nil {
			return handler.Error(err)
		}
		customer = payment.Customer{Name: name, Email: addr}
	}

	tx, err := m.payments.Create(ctx, payment.CreateParams{
		UserID:   userID,
		PlanID:   req.PlanID,
		Gateway:  req.Gateway,
		Customer: customer,
	})
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(m.withQR(ctx, tx))
}

type transactionRequest struct {
	TransactionID int64 `path:"transactionId"`
}

// status answers for the caller's own transactions only. Pending ones are
// reconciled with the gateway after the ownership check.
func (m *Module) status(ctx handler.Context, req transactionRequest) handler.Response {
	tx, err := m.payments.Get(ctx, req.TransactionID)
	if err != nil {
		return handler.Error(mapError(err))
	}
	if tx.UserID != session.UserIDFromContext(ctx) {
		return handler.Error(mapError(payment.ErrNotFound))
	}
	return handler.JSON(m.withQR(ctx, m.payments.Reconcile(ctx, tx)))
}

type updateRequest struct {
	TransactionID int64          `path:"transactionId"`
	Status        payment.Status `json:"status"`
	Metadata      map[string]any `json:"metadata"`
}

func (m *Module) update(ctx handler.Context, req updateRequest) handler.Response {
	tx, err := m.payments.ManualUpdate(ctx, session.UserIDFromContext(ctx), req.TransactionID, req.Status, req.Metadata)
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(m.withQR(ctx, tx))
}

func (m *Module) withQR(ctx context.Context, tx *payment.Transaction) *payment.Transaction {
	if tx.QRContent == "" || !tx.IsPending() {
		return tx
	}
	img, err := qrcode.DataURI(tx.QRContent, qrcode.DefaultSize)
	if err != nil {
		m.log.WarnContext(ctx, "failed to render qr code", logger.TransactionID(tx.ID), logger.Error(err))
		return tx
	}
	tx.QRImage = img
	return tx
}

type okResponse struct {
	Message string `json:"message"`
}

// notification always answers 200 so gateways do not retry; outcomes are
// only visible in logs and metrics.
func (m *Module) notification(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize))
	if err != nil {
		m.log.WarnContext(ctx, "failed to read notification body", logger.Gateway(gateway), logger.Error(err))
	} else if err := m.payments.HandleNotification(ctx, gateway, r.Header, body); err != nil {
		level := slog.LevelError
		if errors.Is(err, payment.ErrVerificationFailed) || errors.Is(err, payment.ErrUnknownGateway) ||
			errors.Is(err, payment.ErrNotFound) || errors.Is(err, payment.ErrNotificationsDisabled) {
			level = slog.LevelWarn
		}
		m.log.Log(ctx, level, "notification not applied", logger.Gateway(gateway), logger.Error(err))
	}

	_ = handler.JSON(okResponse{Message: "OK"}).Render(w, r)
}
