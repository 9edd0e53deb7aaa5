// Package server assembles the HTTP surface: middleware chain, auth gates and
// every API router.
package server

import (
	"context"
	"net/http"
	"time"

	"ms-storefront/internal/analytics/analytics_api"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/events/events_api"
	"ms-storefront/internal/idempotency"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/middleware"
	"ms-storefront/internal/order/order_api"
	"ms-storefront/internal/registration/registration_api"
	"ms-storefront/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	Orders        *order_api.Handler
	Registrations *registration_api.Handler
	Events        *events_api.Handler
	Analytics     *analytics_api.Handler
}

type Options struct {
	Verifier       auth.Verifier
	AdminRole      string
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	RateLimit      config.RateLimitConfig
	// Health reports dependency readiness for /healthz; nil means always healthy.
	Health func(ctx context.Context) error
	Logger *logger.Logger
}

func NewRouter(h Handlers, opts Options) http.Handler {
	log := opts.Logger
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Health(ctx); err != nil {
				log.Warn("HEALTH", err.Error())
				_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Service Unavailable", err.Error()))
				return
			}
		}
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, log))
		r.Use(idempotency.Middleware(opts.Idempotency, log, idempotency.Options{TTL: opts.IdempotencyTTL}))

		r.Route("/api", func(r chi.Router) {
			h.Orders.RegisterUserRoutes(r)
			h.Registrations.RegisterUserRoutes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(opts.AdminRole, log))
				r.Use(middleware.RateLimit(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst, log))

				h.Orders.RegisterAdminRoutes(r)
				h.Registrations.RegisterAdminRoutes(r)
				h.Events.RegisterAdminRoutes(r)
				h.Analytics.RegisterAdminRoutes(r)
			})
		})
	})

	return r
}
