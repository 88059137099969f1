package routes

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ravigill3969/examly/backend/handlers"
	middleware "github.com/ravigill3969/examly/backend/middlewares"
	"github.com/ravigill3969/examly/backend/utils"
	"github.com/rs/zerolog"
)

type Deps struct {
	DB            *sql.DB
	Logger        zerolog.Logger
	Auth          *middleware.Authenticator
	Limiter       *middleware.RateLimiter
	AllowedOrigin string

	Credits *handlers.CreditsHandler
	Stripe  *handlers.Stripe
	Plans   *handlers.PlanHandler
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigin))
	r.Use(middleware.SetCommonHeaders)

	r.Get("/health", health(d.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		// Stripe signs the webhook itself; it never carries a user token.
		StripeWebhookRoutes(api, d.Stripe)

		api.Group(func(authed chi.Router) {
			authed.Use(d.Auth.AuthMiddleware)
			authed.Use(d.Limiter.Middleware)

			CreditsRoutes(authed, d.Credits)
			StripeRoutes(authed, d.Stripe)
			PlanRoutes(authed, d.Plans)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "This route does not exist")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

func health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db == nil || db.PingContext(ctx) != nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
