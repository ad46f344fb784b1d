package session

import (
	"net/http"
	"strings"
	"time"
)

// Transport moves the session token between client and server.
type Transport interface {
	GetToken(r *http.Request) (string, error)
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error
	ClearToken(w http.ResponseWriter) error
}

type CookieTransport struct {
	name   string
	secure bool
}

func NewCookieTransport(name string, secure bool) *CookieTransport {
	return &CookieTransport{name: name, secure: secure}
}

func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	c, err := r.Cookie(t.name)
	if err != nil || c.Value == "" {
		return "", ErrSessionNotFound
	}
	return c.Value, nil
}

func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// BearerTransport reads "Authorization: Bearer <token>". The token is handed
// to clients in the sign-in response body, so SetToken and ClearToken are
// no-ops.
type BearerTransport struct{}

func (BearerTransport) GetToken(r *http.Request) (string, error) {
	v := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(v, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrSessionNotFound
	}
	return strings.TrimSpace(token), nil
}

func (BearerTransport) SetToken(http.ResponseWriter, string, time.Duration) error { return nil }
func (BearerTransport) ClearToken(http.ResponseWriter) error                      { return nil }

// CompositeTransport reads from the first transport that has a token and
// writes to all of them.
type CompositeTransport struct {
	transports []Transport
}

func NewCompositeTransport(transports ...Transport) *CompositeTransport {
	return &CompositeTransport{transports: transports}
}

func (t *CompositeTransport) GetToken(r *http.Request) (string, error) {
	for _, tr := range t.transports {
		if token, err := tr.GetToken(r); err == nil && token != "" {
			return token, nil
		}
	}
	return "", ErrSessionNotFound
}

func (t *CompositeTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	var lastErr error
	for _, tr := range t.transports {
		if err := tr.SetToken(w, token, ttl); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (t *CompositeTransport) ClearToken(w http.ResponseWriter) error {
	var lastErr error
	for _, tr := range t.transports {
		if err := tr.ClearToken(w); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
