package session

import (
	"context"
	"log/slog"
)

type contextKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the authenticated user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.UserID
	}
	return ""
}

// LoggerExtractor adds user_id to log records of authenticated requests.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := UserIDFromContext(ctx); id != "" {
			return slog.String("user_id", id), true
		}
		return slog.Attr{}, false
	}
}
