package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/validator"
)

type errorInfo struct {
	status int
	body   ErrorBody
}

func classify(err error) errorInfo {
	var verr ValidationError
	if errors.As(err, &verr) {
		return errorInfo{
			status: http.StatusUnprocessableEntity,
			body:   ErrorBody{Message: "validation failed", Code: "validation_error", Details: verr},
		}
	}

	if ve := validator.ExtractValidationErrors(err); ve != nil {
		return errorInfo{
			status: http.StatusUnprocessableEntity,
			body:   ErrorBody{Message: "validation failed", Code: "validation_error", Details: ve.Fields()},
		}
	}

	var herr HTTPError
	if errors.As(err, &herr) {
		msg := herr.Message
		if msg == "" {
			msg = http.StatusText(herr.Code)
		}
		return errorInfo{status: herr.Code, body: ErrorBody{Message: msg, Code: herr.Key}}
	}

	return errorInfo{
		status: http.StatusInternalServerError,
		body:   ErrorBody{Message: "Internal Server Error", Code: ErrInternalServerError.Key},
	}
}

func writeError(w http.ResponseWriter, info errorInfo) {
	_ = writeJSON(w, info.status, info.body)
}

// NewErrorHandler logs client errors at warn and server errors at error, then
// writes the ErrorBody. The raw error text never reaches the client unless it
// is an HTTPError message.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx Context, err error) {
		info := classify(err)
		level := slog.LevelError
		if info.status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", info.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)
		writeError(ctx.ResponseWriter(), info)
	}
}
