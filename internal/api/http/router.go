package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Users.Me)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	api.Get("/notifications", cfg.Notifications.List)
	api.Post("/notifications/:id/read", cfg.Notifications.MarkRead)

	admin := api.Group("/admin", auth.RequireAdmin())
	admin.Get("/sla-policies", cfg.SLA.ListPolicies)
	admin.Post("/sla-policies", cfg.SLA.CreatePolicy)
	admin.Put("/sla-policies/:id", cfg.SLA.UpdatePolicy)
	admin.Post("/sla-policies/:id/deactivate", cfg.SLA.DeactivatePolicy)
	admin.Post("/sla/sweep", cfg.SLA.Sweep)
}
