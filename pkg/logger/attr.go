package logger

import (
	"log/slog"
	"time"
)

// Error returns an "error" attribute, or an empty attribute for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID returns a "user_id" attribute, or an empty attribute for "".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// VisitorID returns a "visitor_id" attribute, or an empty attribute for "".
func VisitorID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("visitor_id", id)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func TransactionID(id int64) slog.Attr {
	return slog.Int64("transaction_id", id)
}

func Gateway(name string) slog.Attr {
	return slog.String("gateway", name)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
