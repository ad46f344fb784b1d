// Package tokencache caches partner API access tokens.
//
// A token is fetched with a user-supplied Fetcher, its expiry is read from the
// unverified JWT "exp" claim, and it is reused until RefreshBefore ahead of
// that expiry. Tokens that are not JWTs, or carry no exp, are kept for
// FallbackTTL. Storage is pluggable so replicas can share one token via
// Redis instead of each logging in separately.
package tokencache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var (
	ErrNotFound    = errors.New("token not cached")
	ErrFetchFailed = errors.New("failed to fetch access token")
)

const (
	DefaultRefreshBefore = 5 * time.Minute
	DefaultFallbackTTL   = time.Hour
)

// Entry is what stores persist.
type Entry struct {
	Token     *oauth2.Token `json:"token"`
	RefreshAt time.Time     `json:"refresh_at"`
}

type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Fetcher obtains a fresh raw access token, typically by logging in.
type Fetcher func(ctx context.Context) (string, error)

type Cache struct {
	key           string
	store         Store
	fetch         Fetcher
	now           func() time.Time
	refreshBefore time.Duration
	fallbackTTL   time.Duration

	mu sync.Mutex // serializes refreshes within a process
}

type Option func(*Cache)

func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithRefreshBefore(d time.Duration) Option {
	return func(c *Cache) { c.refreshBefore = d }
}

func WithFallbackTTL(d time.Duration) Option {
	return func(c *Cache) { c.fallbackTTL = d }
}

// New caches the token under key. Without WithStore an in-memory store is used.
func New(key string, fetch Fetcher, opts ...Option) *Cache {
	c := &Cache{
		key:           key,
		fetch:         fetch,
		now:           time.Now,
		refreshBefore: DefaultRefreshBefore,
		fallbackTTL:   DefaultFallbackTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	return c
}

// Token returns a cached token or fetches a new one.
func (c *Cache) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok, ok := c.cached(ctx); ok {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok, ok := c.cached(ctx); ok {
		return tok, nil
	}

	raw, err := c.fetch(ctx)
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}
	if raw == "" {
		return nil, errors.Join(ErrFetchFailed, errors.New("empty token"))
	}

	now := c.now()
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	refreshAt := now.Add(c.fallbackTTL)
	if exp, ok := expiry(raw); ok {
		tok.Expiry = exp
		refreshAt = exp.Add(-c.refreshBefore)
	}

	// a store failure only costs an extra login later
	if ttl := refreshAt.Sub(now); ttl > 0 {
		_ = c.store.Set(ctx, c.key, &Entry{Token: tok, RefreshAt: refreshAt}, ttl)
	}
	return tok, nil
}

// Invalidate drops the cached token, e.g. after the partner answered 401.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.key)
}

func (c *Cache) cached(ctx context.Context) (*oauth2.Token, bool) {
	e, err := c.store.Get(ctx, c.key)
	if err != nil || e == nil || e.Token == nil {
		return nil, false
	}
	if !c.now().Before(e.RefreshAt) {
		return nil, false
	}
	return e.Token, true
}

func expiry(raw string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
