package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AgentTickets   *handlers.AgentTicketsHandler
	Verify         *handlers.VerifyHandler
	Audit          *handlers.AuditHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	// Token-bearing public surface. The URL token is the credential.
	app.Get("/verify/:token", cfg.Verify.GetChallenge)
	app.Post("/verify/:token", cfg.Verify.SubmitAnswers)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)

	user := api.Group("/user", auth.RequireRole(domain.RoleEndUser))
	user.Post("/tickets", cfg.Tickets.CreateTicket)
	user.Get("/tickets", cfg.Tickets.ListTickets)
	user.Get("/tickets/:id", cfg.Tickets.GetTicket)
	user.Get("/tickets/:id/chat", cfg.Tickets.GetChat)
	user.Post("/tickets/:id/chat", cfg.Tickets.AddMessage)
	user.Post("/tickets/:id/close", cfg.Tickets.CloseTicket)

	cs := api.Group("/cs", auth.RequireRole(domain.RoleAgent))
	cs.Get("/tickets/open", cfg.AgentTickets.ListOpen)
	cs.Get("/tickets/mine", cfg.AgentTickets.ListMine)
	cs.Get("/tickets/history", cfg.AgentTickets.ListHistory)
	cs.Get("/tickets/:id", cfg.AgentTickets.GetTicket)
	cs.Get("/tickets/:id/chat", cfg.AgentTickets.GetChat)
	cs.Post("/tickets/:id/claim", cfg.AgentTickets.Claim)
	cs.Post("/tickets/:id/chat", cfg.AgentTickets.AddMessage)
	cs.Post("/tickets/:id/close", cfg.AgentTickets.CloseTicket)
	cs.Post("/tickets/:id/start-verification", cfg.AgentTickets.StartVerification)
	cs.Post("/tickets/:id/reset-password", cfg.AgentTickets.ResetPassword)

	auditor := api.Group("/auditor", auth.RequireRole(domain.RoleAuditor))
	auditor.Get("/logs", cfg.Audit.ListEntries)
	auditor.Get("/tickets", cfg.Audit.ListTickets)
	auditor.Get("/tickets/:id", cfg.Audit.TicketReview)
}
