package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Rules          *handlers.RulesHandler
	Agents         *handlers.AgentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Ticket creation and category listing are
// public so requester-facing channels can submit without credentials; every
// other route requires an authenticated agent.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Agents.Login)

	app.Post("/tickets", cfg.Tickets.CreateTicket)
	app.Get("/categories", cfg.Agents.ListCategories)

	agents := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole())
	agents.Post("/auth/password/change", cfg.Agents.ChangePassword)

	agents.Get("/tickets", cfg.Tickets.ListTickets)
	agents.Get("/tickets/:id", cfg.Tickets.GetTicket)
	agents.Delete("/tickets/:id", cfg.Tickets.DeleteTicket)
	agents.Post("/tickets/:id/comments", cfg.Tickets.AddComment)
	agents.Post("/tickets/:id/status", cfg.Tickets.ChangeStatus)
	agents.Get("/tickets/:id/transitions", cfg.Tickets.AvailableTransitions)
	agents.Post("/tickets/:id/priority", cfg.Tickets.ChangePriority)
	agents.Post("/tickets/:id/assign", cfg.Tickets.Assign)
	agents.Put("/tickets/:id/tags", cfg.Tickets.UpdateTags)
	agents.Get("/tickets/:id/sla", cfg.Tickets.SLACompliance)
	agents.Post("/tickets/:id/analyze", cfg.Tickets.Analyze)

	leads := app.Group("", cfg.AuthMiddleware.Handle,
		auth.RequireRole(domain.AgentRoleTeamLead, domain.AgentRoleAdmin))
	leads.Post("/rules", cfg.Rules.CreateRule)
	leads.Get("/rules", cfg.Rules.ListRules)
	leads.Get("/rules/:id", cfg.Rules.GetRule)
	leads.Put("/rules/:id", cfg.Rules.UpdateRule)
	leads.Delete("/rules/:id", cfg.Rules.DeleteRule)
	leads.Post("/rules/:id/test", cfg.Rules.TestRule)
	leads.Get("/rules/:id/statistics", cfg.Rules.RuleStatistics)
	leads.Post("/rules/templates/apply", cfg.Rules.ApplyTemplate)
	leads.Post("/rules/process", cfg.Rules.ProcessTicket)

	admins := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.AgentRoleAdmin))
	admins.Post("/agents", cfg.Agents.CreateAgent)
	admins.Get("/agents", cfg.Agents.ListAgents)
	admins.Get("/agents/:id", cfg.Agents.GetAgent)
	admins.Put("/agents/:id", cfg.Agents.UpdateAgent)
	admins.Post("/categories", cfg.Agents.CreateCategory)
}
