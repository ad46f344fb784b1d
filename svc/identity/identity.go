// Package identity decides who is calling: an authenticated user or an
// anonymous visitor identified by a client-generated token.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/storify-asia/storify/pkg/session"
)

const (
	HeaderVisitorID = "X-Visitor-ID"
	QueryVisitorID  = "visitorId"

	maxVisitorIDLen = 128
)

type Kind uint8

const (
	KindNone Kind = iota
	KindUser
	KindVisitor
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindVisitor:
		return "visitor"
	default:
		return "none"
	}
}

// Identity holds exactly one of UserID or VisitorID, or neither.
type Identity struct {
	Kind      Kind
	UserID    string
	VisitorID string
}

func User(id string) Identity {
	if id == "" {
		return Identity{}
	}
	return Identity{Kind: KindUser, UserID: id}
}

// Visitor returns an anonymous identity, or the zero Identity when id is
// blank or too long.
func Visitor(id string) Identity {
	id = normalizeVisitorID(id)
	if id == "" {
		return Identity{}
	}
	return Identity{Kind: KindVisitor, VisitorID: id}
}

func (i Identity) IsAuthenticated() bool { return i.Kind == KindUser }
func (i Identity) IsAnonymous() bool     { return i.Kind == KindVisitor }
func (i Identity) IsZero() bool          { return i.Kind == KindNone }

// Resolve prefers the authenticated user and otherwise takes the first
// usable visitor token from candidates.
func Resolve(userID string, visitorIDs ...string) Identity {
	if userID != "" {
		return User(userID)
	}
	for _, v := range visitorIDs {
		if id := Visitor(v); !id.IsZero() {
			return id
		}
	}
	return Identity{}
}

// FromRequest resolves the caller of r. The session is read from the request
// context; visitor tokens are taken from the query, then bodyVisitorID, then
// the X-Visitor-ID header.
func FromRequest(r *http.Request, bodyVisitorID string) Identity {
	return Resolve(
		session.UserIDFromContext(r.Context()),
		r.URL.Query().Get(QueryVisitorID),
		bodyVisitorID,
		r.Header.Get(HeaderVisitorID),
	)
}

type contextKey struct{}

func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithContext, if any.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(contextKey{}).(Identity)
	return id
}

func normalizeVisitorID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxVisitorIDLen {
		return ""
	}
	return id
}
