// Package session keeps authenticated user sessions.
//
// A session is created at sign-in and identified by an opaque random token.
// Clients present the token either in the session cookie (browsers) or as
// an Authorization: Bearer header (mobile apps). There are no anonymous
// sessions: guests are tracked by their visitor id instead.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
