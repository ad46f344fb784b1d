// Package handler turns typed request handlers into http.HandlerFunc.
//
// A HandlerFunc receives a Context and a request struct populated by the
// configured binders, and returns a Response. Errors are returned as
// responses too (see Error) so that every failure goes through one
// ErrorHandler, which logs it and writes the JSON error body.
//
//	h := handler.HandlerFunc[handler.Context, statusRequest](
//		func(ctx handler.Context, req statusRequest) handler.Response {
//			st, err := svc.Evaluate(ctx, ident)
//			if err != nil {
//				return handler.Error(err)
//			}
//			return handler.JSON(st)
//		},
//	)
//	r.Get("/status", handler.Wrap(h, handler.WithBinders[handler.Context, statusRequest](binder.Query())))
package handler

import (
	"errors"
	"net/http"

	"github.com/storify-asia/storify/pkg/binder"
)

type HandlerFunc[C Context, R any] func(ctx C, req R) Response

// Response writes itself to the client. A non-nil error from Render is passed
// to the ErrorHandler, provided nothing has been written yet.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type Bind func(r *http.Request, v any) error

type ErrorHandler[C Context] func(ctx C, err error)

// Decorator wraps a HandlerFunc. The first decorator passed to
// WithDecorators is the outermost.
type Decorator[C Context, R any] func(HandlerFunc[C, R]) HandlerFunc[C, R]

type WrapOption[C Context, R any] func(*wrapConfig[C, R])

type wrapConfig[C Context, R any] struct {
	binders        []Bind
	errorHandler   ErrorHandler[C]
	contextFactory func(http.ResponseWriter, *http.Request) C
	decorators     []Decorator[C, R]
}

// WithBinders appends binders; they run in order and each one only reads
// its own source.
func WithBinders[C Context, R any](binders ...Bind) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		c.binders = append(c.binders, binders...)
	}
}

func WithErrorHandler[C Context, R any](h ErrorHandler[C]) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

func WithContextFactory[C Context, R any](f func(http.ResponseWriter, *http.Request) C) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		if f != nil {
			c.contextFactory = f
		}
	}
}

func WithDecorators[C Context, R any](decorators ...Decorator[C, R]) WrapOption[C, R] {
	return func(c *wrapConfig[C, R]) {
		c.decorators = append(c.decorators, decorators...)
	}
}

// Wrap adapts h to net/http. Without WithContextFactory the default Context
// is used, which only works when C is Context itself.
func Wrap[C Context, R any](h HandlerFunc[C, R], opts ...WrapOption[C, R]) http.HandlerFunc {
	cfg := &wrapConfig[C, R]{
		errorHandler: defaultErrorHandler[C],
		contextFactory: func(w http.ResponseWriter, r *http.Request) C {
			c, ok := NewContext(w, r).(C)
			if !ok {
				panic("handler: custom context type requires WithContextFactory")
			}
			return c
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	final := h
	for i := len(cfg.decorators) - 1; i >= 0; i-- {
		final = cfg.decorators[i](final)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := cfg.contextFactory(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				if errors.Is(err, binder.ErrBinderNotApplicable) {
					continue
				}
				cfg.errorHandler(ctx, errors.Join(ErrBadRequest, err))
				return
			}
		}

		resp := final(ctx, req)
		if resp == nil {
			cfg.errorHandler(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.errorHandler(ctx, err)
		}
	}
}

func defaultErrorHandler[C Context](ctx C, err error) {
	writeError(ctx.ResponseWriter(), classify(err))
}
