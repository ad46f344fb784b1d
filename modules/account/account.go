// Package account serves sign-up, sign-in, sign-out and email verification.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storify-asia/storify/handler"
	"github.com/storify-asia/storify/pkg/binder"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/svc/auth"
)

type Accounts interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.User, error)
	SignIn(ctx context.Context, in auth.SignInInput) (*auth.User, error)
	User(ctx context.Context, id string) (*auth.User, error)
	VerifyEmail(ctx context.Context, token string) (*auth.User, error)
	ResendVerification(ctx context.Context, userID string) error
}

type Sessions interface {
	Create(ctx context.Context, w http.ResponseWriter, userID string) (*session.Session, error)
	Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

type Module struct {
	accounts Accounts
	sessions Sessions
	log      *slog.Logger
	errors   handler.ErrorHandler[handler.Context]
}

// New returns the account module.
func New(accounts Accounts, sessions Sessions, log *slog.Logger) *Module {
	if log == nil {
		log = logger.Nop()
	}
	return &Module{
		accounts: accounts,
		sessions: sessions,
		log:      log.With(logger.Component("account")),
		errors:   handler.NewErrorHandler(log),
	}
}

// Routes mounts the /auth endpoints. /me and /resend-verification need a
// signed-in session.
func (m *Module) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", handler.Wrap(m.signUp,
			handler.WithBinders[handler.Context, auth.SignUpInput](binder.JSON()),
			handler.WithErrorHandler[handler.Context, auth.SignUpInput](m.errors),
		))
		r.Post("/signin", handler.Wrap(m.signIn,
			handler.WithBinders[handler.Context, auth.SignInInput](binder.JSON()),
			handler.WithErrorHandler[handler.Context, auth.SignInInput](m.errors),
		))
		r.Post("/signout", handler.Wrap(m.signOut,
			handler.WithErrorHandler[handler.Context, struct{}](m.errors),
		))
		r.Get("/verify-email", handler.Wrap(m.verifyEmail,
			handler.WithBinders[handler.Context, verifyRequest](binder.Query()),
			handler.WithErrorHandler[handler.Context, verifyRequest](m.errors),
		))

		r.Group(func(r chi.Router) {
			r.Use(session.RequireAuth)
			r.Get("/me", handler.Wrap(m.me,
				handler.WithErrorHandler[handler.Context, struct{}](m.errors),
			))
			r.Post("/resend-verification", handler.Wrap(m.resend,
				handler.WithErrorHandler[handler.Context, struct{}](m.errors),
			))
		})
	})
}

// authResponse carries the session token for clients that use the Bearer
// header instead of the cookie.
type authResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

type successResponse struct {
	Success bool       `json:"success"`
	User    *auth.User `json:"user,omitempty"`
}

func (m *Module) signUp(ctx handler.Context, in auth.SignUpInput) handler.Response {
	u, err := m.accounts.SignUp(ctx, in)
	if err != nil {
		return handler.Error(mapError(err))
	}
	return m.startSession(ctx, u, http.StatusCreated)
}

func (m *Module) signIn(ctx handler.Context, in auth.SignInInput) handler.Response {
	u, err := m.accounts.SignIn(ctx, in)
	if err != nil {
		return handler.Error(mapError(err))
	}
	return m.startSession(ctx, u, http.StatusOK)
}

func (m *Module) startSession(ctx handler.Context, u *auth.User, status int) handler.Response {
	s, err := m.sessions.Create(ctx, ctx.ResponseWriter(), u.ID)
	if err != nil {
		return handler.Error(err)
	}
	m.log.InfoContext(ctx, "session started", logger.UserID(u.ID))
	return handler.JSON(authResponse{User: u, Token: s.Token}, handler.WithJSONStatus(status))
}

func (m *Module) signOut(ctx handler.Context, _ struct{}) handler.Response {
	if err := m.sessions.Destroy(ctx, ctx.ResponseWriter(), ctx.Request()); err != nil {
		m.log.WarnContext(ctx, "failed to destroy session", logger.Error(err))
	}
	return handler.JSON(successResponse{Success: true})
}

func (m *Module) me(ctx handler.Context, _ struct{}) handler.Response {
	u, err := m.accounts.User(ctx, session.UserIDFromContext(ctx))
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(u)
}

type verifyRequest struct {
	Token string `query:"token"`
}

func (m *Module) verifyEmail(ctx handler.Context, req verifyRequest) handler.Response {
	u, err := m.accounts.VerifyEmail(ctx, req.Token)
	if err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(successResponse{Success: true, User: u})
}

func (m *Module) resend(ctx handler.Context, _ struct{}) handler.Response {
	if err := m.accounts.ResendVerification(ctx, session.UserIDFromContext(ctx)); err != nil {
		return handler.Error(mapError(err))
	}
	return handler.JSON(successResponse{Success: true})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		return handler.ErrBadRequest.WithMessage("Email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return handler.ErrUnauthorized.WithMessage("Invalid email or password")
	case errors.Is(err, auth.ErrUserNotFound):
		// a session outliving its user
		return handler.ErrUnauthorized
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		return handler.ErrBadRequest.WithMessage("Invalid or expired verification token")
	case errors.Is(err, auth.ErrAlreadyVerified):
		return handler.ErrBadRequest.WithMessage("Email already verified")
	}
	return err
}
