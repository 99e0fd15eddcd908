package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/bearer-auth/internal/api/http/handlers"
	"github.com/spec-kit/bearer-auth/internal/auth"
	"github.com/spec-kit/bearer-auth/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Authentication runs on every route and
// never rejects; guards on individual groups decide access.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.AuthMiddleware.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/health/metrics", cfg.Metrics.Snapshot)
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	// Group-level handlers would also guard register and login.
	requireAuth := auth.RequireAuthenticated()
	authGroup.Get("/me", requireAuth, cfg.Auth.Me)
	authGroup.Post("/password/change", requireAuth, cfg.Auth.ChangePassword)

	app.Get("/users", auth.RequireRole(domain.RoleAdmin), cfg.Users.List)
}
