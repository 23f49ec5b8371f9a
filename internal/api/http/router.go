package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/factory-support/internal/api/http/handlers"
	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/domain"
	"github.com/spec-kit/factory-support/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Chat           *handlers.ChatHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
	Realtime       *realtime.Transport
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api")
	api.Get("/health", cfg.Health.Ping)

	authGroup := api.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	chats := api.Group("/chats", cfg.AuthMiddleware.Handle, auth.RequireRole())
	chats.Get("/:issueId/messages", cfg.Chat.ListMessages)
	chats.Post("/:issueId/messages", cfg.Chat.PostMessage)

	if cfg.Metrics != nil {
		app.Get("/metrics/snapshot", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin), cfg.Metrics.Snapshot)
	}

	if cfg.Realtime != nil {
		cfg.Realtime.Register(app, "/ws")
	}
}
