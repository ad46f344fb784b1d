// Package app wires configuration, storage, services and HTTP modules into
// the running Storify API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/storify-asia/storify/pkg/activity"
	"github.com/storify-asia/storify/pkg/email"
	"github.com/storify-asia/storify/pkg/httpserver"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/metrics"
	"github.com/storify-asia/storify/pkg/objectstore"
	"github.com/storify-asia/storify/pkg/opensearch"
	"github.com/storify-asia/storify/pkg/pg"
	"github.com/storify-asia/storify/pkg/ratelimiter"
	"github.com/storify-asia/storify/pkg/redis"
	"github.com/storify-asia/storify/pkg/session"
	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/auth"
	"github.com/storify-asia/storify/svc/catalog"
	"github.com/storify-asia/storify/svc/entitlement"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/subscription"
)

// App owns every long-lived dependency of the API process.
type App struct {
	cfg Config
	log *slog.Logger

	pool  *pgxpool.Pool
	redis *goredis.Client

	metrics   *metrics.Metrics
	sessions  *session.Manager
	activity  *activity.Sink
	scheduler *Scheduler
	checks    []func(context.Context) error

	limitStore *ratelimiter.MemoryStore
	apiLimit   func(http.Handler) http.Handler
	authLimit  func(http.Handler) http.Handler

	closeOnce sync.Once

	auth          *auth.Service
	catalog       *catalog.Service
	subscriptions *subscription.Service
	entitlement   *entitlement.Service
	payments      *payment.Manager
}

// New connects to the backing services and builds the object graph. Close
// releases everything New acquired.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.checks = append(a.checks, pg.Healthcheck(pool))

	if cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.redis = rdb
		a.checks = append(a.checks, redis.Healthcheck(rdb))
	}

	if err := a.build(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	mailer, err := email.NewSender(cfg.Email)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}

	a.auth = auth.NewService(cfg.Auth, auth.NewPgStore(a.pool),
		auth.WithMailer(mailer),
		auth.WithLogger(a.log),
	)

	books, err := NewCatalog(ctx, cfg, a.pool, a.log)
	if err != nil {
		return err
	}
	a.catalog = books

	payStore := payment.NewPgStore(a.pool)
	receipts := payment.NewReceiptMailer(mailer, payStore, a.auth, a.log)

	a.subscriptions = subscription.NewService(subscription.NewPgStore(a.pool),
		subscription.WithLogger(a.log),
		subscription.WithMetrics(a.metrics),
		subscription.WithActivationHook(receipts.Hook()),
	)

	a.entitlement = entitlement.NewService(entitlement.NewPgStore(a.pool), a.subscriptions,
		entitlement.WithLimits(entitlement.Limits{Free: cfg.Listening.FreeLimit, Guest: cfg.Listening.GuestLimit}),
		entitlement.WithLogger(a.log),
		entitlement.WithMetrics(a.metrics),
	)

	gateways, err := buildGateways(cfg, a.redis, a.log)
	if err != nil {
		return fmt.Errorf("payment gateways: %w", err)
	}
	if len(gateways) == 0 {
		a.log.Warn("no payment gateway configured, payments are unavailable")
	}
	a.payments = payment.NewManager(payStore, a.subscriptions,
		payment.WithGateways(gateways...),
		payment.WithDefaultGateway(cfg.Payment.DefaultGateway),
		payment.WithExpiry(cfg.Payment.Expiry),
		payment.WithWebhookPolicy(webhook.ParsePolicy(cfg.Payment.WebhookPolicy)),
		payment.WithManualUpdates(cfg.Payment.AllowManualUpdate),
		payment.WithLogger(a.log),
		payment.WithMetrics(a.metrics),
	)

	a.sessions = session.NewManager(cfg.Session)
	a.activity = activity.NewSink(activity.NewPgWriter(a.pool), a.log, activity.Options{})
	a.scheduler = NewScheduler(a.payments, cfg.Payment.ExpirySchedule, cfg.ExpiryBatch, a.log)
	return a.buildLimits()
}

// buildLimits keeps buckets in redis when it is configured so every API
// instance shares them.
func (a *App) buildLimits() error {
	pass := func(next http.Handler) http.Handler { return next }
	a.apiLimit, a.authLimit = pass, pass
	if !a.cfg.RateLimit.Enabled {
		return nil
	}

	var store ratelimiter.Store
	if a.redis != nil {
		store = ratelimiter.NewRedisStore(a.redis, "")
	} else {
		a.limitStore = ratelimiter.NewMemoryStore(time.Minute)
		store = a.limitStore
	}

	api, err := ratelimiter.New(store, a.cfg.RateLimit.API())
	if err != nil {
		return fmt.Errorf("api rate limit: %w", err)
	}
	authBucket, err := ratelimiter.New(store, a.cfg.RateLimit.Auth())
	if err != nil {
		return fmt.Errorf("auth rate limit: %w", err)
	}

	a.apiLimit = ratelimiter.Middleware(api, ratelimiter.ByIP("api"), a.log)
	a.authLimit = postOnly(ratelimiter.Middleware(authBucket, ratelimiter.ByIP("auth"), a.log))
	return nil
}

// NewCatalog builds the catalog service with the optional search index and
// audio presigner.
func NewCatalog(ctx context.Context, cfg Config, pool *pgxpool.Pool, log *slog.Logger) (*catalog.Service, error) {
	opts := []catalog.Option{catalog.WithLogger(log)}

	if cfg.ObjectStore.Enabled() {
		store, err := objectstore.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		opts = append(opts, catalog.WithAudioSigner(store))
	}

	if cfg.OpenSearch.Enabled() {
		client, err := opensearch.New(ctx, cfg.OpenSearch)
		if err != nil {
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		idx := opensearch.NewIndex(client, cfg.OpenSearch.Index, "title^3", "author^2", "description", "category")
		if err := idx.Ensure(ctx); err != nil {
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		opts = append(opts, catalog.WithSearchIndex(idx))
	}

	return catalog.NewService(catalog.NewPgStore(pool), opts...), nil
}

// Run serves HTTP and runs the scheduler until ctx is cancelled or a
// shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(); err != nil {
		a.Close(ctx)
		return fmt.Errorf("scheduler: %w", err)
	}

	srv := httpserver.New(a.cfg.HTTP,
		httpserver.WithLogger(a.log),
		httpserver.WithStopHook(a.scheduler.Stop),
		httpserver.WithStopHook(a.Close),
	)
	return srv.Run(ctx, a.Handler())
}

// Close flushes the activity sink and closes connections. Safe on a
// partially built App and safe to call twice.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() { a.close(ctx) })
}

func (a *App) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if a.activity != nil {
		if err := a.activity.Close(ctx); err != nil {
			a.log.ErrorContext(ctx, "failed to flush activity", logger.Error(err))
		}
	}
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
	if a.limitStore != nil {
		a.limitStore.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			a.log.ErrorContext(ctx, "failed to close redis", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) Handler() http.Handler {
	return a.routes()
}
