package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Webhook        *handlers.WebhookHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Channel ingestion: shared-token auth, no principal.
	app.Post("/webhooks/incoming", cfg.Webhook.Incoming)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/agents/login", cfg.Auth.AgentLogin)

	customer := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireCustomer())
	customer.Post("/", cfg.Tickets.CreateTicket)
	customer.Get("/", cfg.Tickets.ListTickets)
	customer.Get("/:id", cfg.Tickets.GetTicket)
	customer.Post("/:id/replies", cfg.Tickets.AddReply)

	agent := app.Group("/agent/tickets", cfg.AuthMiddleware.Handle, auth.RequireAgentRole(domain.AgentRoleAgent, domain.AgentRoleAdmin))
	agent.Get("/", cfg.Tickets.AgentListTickets)
	agent.Get("/:id", cfg.Tickets.AgentGetTicket)
	agent.Post("/:id/replies", cfg.Tickets.AgentAddReply)
	agent.Patch("/:id/status", cfg.Tickets.AgentUpdateStatus)
	agent.Patch("/:id/priority", cfg.Tickets.AgentUpdatePriority)
	agent.Patch("/:id/assignee", cfg.Tickets.AgentAssignTicket)
	agent.Get("/:id/history", cfg.Tickets.AgentGetHistory)
}
