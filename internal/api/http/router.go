package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lerndmina/Heimdall-sub004/internal/api/http/handlers"
	"github.com/lerndmina/Heimdall-sub004/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Events         *handlers.EventsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.Token)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/metrics", cfg.Health.Metrics)
	protected.Get("/guilds/:guildID/tickets", cfg.Tickets.ListByUser)
	protected.Get("/tickets/:id", cfg.Tickets.Get)
	protected.Get("/tickets/:id/transcript", cfg.Tickets.Transcript)

	events := protected.Group("/events")
	events.Post("/user-dm", cfg.Events.UserDM)
	events.Post("/thread-message", cfg.Events.ThreadMessage)

	commands := protected.Group("/commands")
	commands.Post("/open", cfg.Events.OpenCommand)
	commands.Post("/claim", cfg.Events.ClaimCommand)
	commands.Post("/resolve", cfg.Events.ResolveCommand)
	commands.Post("/priority", cfg.Events.PriorityCommand)
	commands.Post("/close", cfg.Events.CloseCommand)
}
