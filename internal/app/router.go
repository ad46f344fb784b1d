package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/storify-asia/storify/modules/account"
	activitymod "github.com/storify-asia/storify/modules/activity"
	"github.com/storify-asia/storify/modules/billing"
	catalogmod "github.com/storify-asia/storify/modules/catalog"
	"github.com/storify-asia/storify/modules/listening"
	"github.com/storify-asia/storify/pkg/clientip"
	"github.com/storify-asia/storify/pkg/httpserver"
	"github.com/storify-asia/storify/pkg/requestid"
	"github.com/storify-asia/storify/svc/identity"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", identity.HeaderVisitorID, requestid.Header},
		ExposedHeaders:   []string{requestid.Header},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health/live", httpserver.HealthCheckHandler(a.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, a.checks...))
	r.Handle("/metrics", a.metrics.Handler())

	bill := billing.New(a.subscriptions, a.payments, a.auth, a.log)

	r.Route("/api", func(r chi.Router) {
		// gateway callbacks are not rate limited and carry no session
		r.Group(bill.WebhookRoutes)

		r.Group(func(r chi.Router) {
			r.Use(a.apiLimit)
			r.Use(a.sessions.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(a.authLimit)
				account.New(a.auth, a.sessions, a.log).Routes(r)
			})
			catalogmod.New(a.catalog, a.log).Routes(r)
			listening.New(a.entitlement, a.log).Routes(r)
			bill.Routes(r)
			activitymod.New(a.activity, a.log).Routes(r)
		})
	})
	return r
}

// postOnly applies mw to POST requests and lets reads through untouched.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
