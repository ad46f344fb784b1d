package session

import (
	"context"
	"net/http"
	"time"
)

type Manager struct {
	store     Store
	transport Transport
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Manager)

func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager defaults to a MemoryStore and a cookie-then-bearer transport.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultConfig().CookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	m := &Manager{ttl: cfg.TTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore(cfg.CleanupInterval)
	}
	if m.transport == nil {
		m.transport = NewCompositeTransport(
			NewCookieTransport(cfg.CookieName, cfg.SecureCookies),
			BearerTransport{},
		)
	}
	return m
}

// Create starts a session for userID and writes the token to the client.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID string) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	if err := m.transport.SetToken(w, token, m.ttl); err != nil {
		_ = m.store.Delete(ctx, token)
		return nil, err
	}
	return s, nil
}

// Get loads the session the request carries.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, token)
}

// Destroy removes the current session, if any, and clears the client token.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if token, err := m.transport.GetToken(r); err == nil {
		_ = m.store.Delete(ctx, token)
	}
	return m.transport.ClearToken(w)
}

// Close stops the store's background sweeper when it has one.
func (m *Manager) Close() error {
	if c, ok := m.store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
