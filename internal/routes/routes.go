package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/handlers"
	"github.com/BradenHooton/turnstile/internal/middleware"
	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	sessionValidator *auth.SessionValidator,
	loginRateLimit middleware.RateLimitConfig,
	metricsHandler http.Handler,
	logger *slog.Logger,
) {
	router.Get("/health", healthHandler.Health)
	router.Handle("/metrics", metricsHandler)

	// Public routes - no session required
	router.With(middleware.RateLimitByIP(loginRateLimit)).Post("/auth/login", authHandler.Login)

	// Protected routes - session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sessionValidator, logger))

		r.Get("/auth/session", authHandler.Session)

		// Admin-only routes
		r.Route("/admin/accounts", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Post("/", adminHandler.CreateAccount)
			r.Get("/{id}", adminHandler.GetAccount)
			r.Post("/{id}/ban", adminHandler.Ban)
			r.Post("/{id}/unban", adminHandler.Unban)
			r.Post("/{id}/deactivate", adminHandler.Deactivate)
			r.Post("/{id}/activate", adminHandler.Activate)
			r.Post("/{id}/verify-email", adminHandler.VerifyEmail)
			r.Post("/{id}/force-logout", adminHandler.ForceLogout)
			r.Put("/{id}/password", adminHandler.SetPassword)
		})
	})
}
