// Package httpclient is a JSON client for partner APIs with an explicit
// timeout. Idempotent GETs are retried once; writes never are.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBody = 4 << 10

var ErrEncodeRequest = errors.New("failed to encode request body")

type Config struct {
	Timeout    time.Duration `env:"GATEWAY_HTTP_TIMEOUT" envDefault:"10s"`
	RetryDelay time.Duration `env:"GATEWAY_HTTP_RETRY_DELAY" envDefault:"500ms"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("partner api returned %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type Client struct {
	http       *http.Client
	retryDelay time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client; its timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		retryDelay: cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOption decorates an outgoing request, e.g. with credentials.
type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func WithBasicAuth(user, password string) RequestOption {
	return func(r *http.Request) { r.SetBasicAuth(user, password) }
}

// DoJSON sends in as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, url string, in, out any, opts ...RequestOption) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Join(ErrEncodeRequest, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = 2
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return err
			}
		}
		retry, err := c.do(ctx, method, url, payload, out, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, out any, opts []RequestOption) (bool, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode >= 500, &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode partner response: %w", err)
	}
	return false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
