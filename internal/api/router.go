package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"civicpulse/internal/api/handlers"
	apimiddleware "civicpulse/internal/api/middleware"
	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitStore
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil when rate
// limiting is disabled.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.RateLimitStore, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Use(middleware.Timeout(30 * time.Second))

		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)

		// Gateway webhook; the gateway authenticates by network placement
		pub.Post("/webhooks/messages", r.handlers.Webhook.Receive)
	})

	// API v1 routes (authenticated)
	router.Route("/api/v1", func(api chi.Router) {
		api.Use(apimiddleware.APIKeyAuth(r.config.API.Keys))
		if r.config.RateLimit.Enabled && r.limiter != nil {
			api.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
		}

		// Live feed; long-lived, so no request timeout
		api.Get("/events/ws", r.handlers.Streaming.HandleWebSocket)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(60 * time.Second))

			g.Route("/reports", func(reports chi.Router) {
				reports.Get("/", r.handlers.Reports.List)
				reports.Get("/{id}", r.handlers.Reports.Get)
				reports.Patch("/{id}/status", r.handlers.Reports.ChangeStatus)
			})

			g.Route("/broadcasts", func(b chi.Router) {
				b.Get("/", r.handlers.Broadcasts.List)
				b.Post("/", r.handlers.Broadcasts.Create)
			})

			g.Get("/events/stats", r.handlers.Streaming.GetStats)
		})
	})

	return router
}
