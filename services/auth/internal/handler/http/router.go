package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/TrainingPlatform/pkg/health"
	"github.com/utafrali/TrainingPlatform/pkg/middleware"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/domain"
	"github.com/utafrali/TrainingPlatform/services/auth/internal/service"
)

// RouterConfig carries everything NewRouter needs.
type RouterConfig struct {
	Service   *service.AuthService
	Validator middleware.TokenValidator
	Health    *health.Handler
	Logger    *slog.Logger
	CORS      middleware.CORSConfig
	Cookie    CookieConfig
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing("auth-service"))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("auth", "/health/live", "/health/ready", "/metrics"))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.Service, cfg.Cookie, cfg.Logger)
	authRoutes := func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Validator))

			r.Get("/me", authHandler.Me)
			r.Post("/logout-all", authHandler.LogoutAll)
		})
	}
	r.Route("/api/v1/auth", authRoutes)
	r.Route("/auth", authRoutes)

	identityHandler := NewIdentityHandler(cfg.Service, cfg.Logger)
	r.Route("/api/v1/identities", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Validator))
		r.Use(middleware.RequireRole(domain.StaffRoles()...))

		r.Get("/{id}", identityHandler.Get)
	})

	return r
}
