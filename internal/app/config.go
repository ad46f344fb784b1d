package app

import (
	"time"

	"github.com/storify-asia/storify/pkg/email"
	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/pkg/httpserver"
	"github.com/storify-asia/storify/pkg/objectstore"
	"github.com/storify-asia/storify/pkg/opensearch"
	"github.com/storify-asia/storify/pkg/pg"
	"github.com/storify-asia/storify/pkg/ratelimiter"
	"github.com/storify-asia/storify/pkg/redis"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/svc/auth"
	"github.com/storify-asia/storify/svc/entitlement"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/payment/doku"
	"github.com/storify-asia/storify/svc/payment/paddle"
	"github.com/storify-asia/storify/svc/payment/pewaca"
	"github.com/storify-asia/storify/svc/payment/xendit"
)

// Config is the whole process configuration. Every component reads its own
// variables; see the individual Config types.
type Config struct {
	Env         string   `env:"APP_ENV" envDefault:"development"`
	Name        string   `env:"APP_NAME" envDefault:"storify"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ExpiryBatch int      `env:"PAYMENT_EXPIRY_BATCH" envDefault:"100"`

	RateLimit   RateLimitConfig
	HTTP        httpserver.Config
	PG          pg.Config
	Redis       redis.Config
	Session     session.Config
	Email       email.Config
	Auth        auth.Config
	Listening   entitlement.Config
	Payment     payment.Config
	GatewayHTTP httpclient.Config
	Doku        doku.Config
	Xendit      xendit.Config
	Pewaca      pewaca.Config
	Paddle      paddle.Config
	ObjectStore objectstore.Config
	OpenSearch  opensearch.Config
}

// RateLimitConfig sets the per-IP budgets. The auth budget applies on top of
// the general API budget to the /api/auth routes.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	APICapacity       int           `env:"RATE_LIMIT_API_CAPACITY" envDefault:"120"`
	APIRefillRate     int           `env:"RATE_LIMIT_API_REFILL_RATE" envDefault:"2"`
	APIRefillInterval time.Duration `env:"RATE_LIMIT_API_REFILL_INTERVAL" envDefault:"1s"`

	AuthCapacity       int           `env:"RATE_LIMIT_AUTH_CAPACITY" envDefault:"10"`
	AuthRefillRate     int           `env:"RATE_LIMIT_AUTH_REFILL_RATE" envDefault:"1"`
	AuthRefillInterval time.Duration `env:"RATE_LIMIT_AUTH_REFILL_INTERVAL" envDefault:"30s"`
}

func (c RateLimitConfig) API() ratelimiter.Config {
	return ratelimiter.Config{Capacity: c.APICapacity, RefillRate: c.APIRefillRate, RefillInterval: c.APIRefillInterval}
}

func (c RateLimitConfig) Auth() ratelimiter.Config {
	return ratelimiter.Config{Capacity: c.AuthCapacity, RefillRate: c.AuthRefillRate, RefillInterval: c.AuthRefillInterval}
}
