package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/dto"
	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// AgentTicketsHandler manages the support-agent ticket endpoints,
// including the step-up verification and privileged-action surface.
type AgentTicketsHandler struct {
	tickets      *service.TicketService
	verification *service.VerificationService
	gate         *service.GateService
}

// NewAgentTicketsHandler constructs handler.
func NewAgentTicketsHandler(tickets *service.TicketService, verification *service.VerificationService, gate *service.GateService) *AgentTicketsHandler {
	return &AgentTicketsHandler{tickets: tickets, verification: verification, gate: gate}
}

// ListOpen GET /api/cs/tickets/open.
func (h *AgentTicketsHandler) ListOpen(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	tickets, err := h.tickets.ListOpenTickets(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// ListMine GET /api/cs/tickets/mine.
func (h *AgentTicketsHandler) ListMine(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.tickets.ListAgentTickets(c.UserContext(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// ListHistory GET /api/cs/tickets/history.
func (h *AgentTicketsHandler) ListHistory(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.tickets.ListHandledTickets(c.UserContext(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetTicket GET /api/cs/tickets/:id.
func (h *AgentTicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	// The transcript is visible only to the claiming agent; an unclaimed
	// ticket shows its summary alone.
	var msgs []domain.ChatMessage
	if ticket.ClaimedBy != nil && *ticket.ClaimedBy == principal.User.ID {
		msgs, err = h.tickets.Transcript(c.UserContext(), principal.User, ticket.ID)
		if err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs)})
}

// Claim POST /api/cs/tickets/:id/claim.
func (h *AgentTicketsHandler) Claim(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.tickets.Claim(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetChat GET /api/cs/tickets/:id/chat.
func (h *AgentTicketsHandler) GetChat(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	msgs, err := h.tickets.Transcript(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chatMessageResponses(msgs)})
}

// AddMessage POST /api/cs/tickets/:id/chat.
func (h *AgentTicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}

	msg, err := h.tickets.PostMessage(c.UserContext(), principal.User, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": chatMessageResponse(msg)})
}

// CloseTicket POST /api/cs/tickets/:id/close.
func (h *AgentTicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.tickets.Close(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// StartVerification POST /api/cs/tickets/:id/start-verification.
func (h *AgentTicketsHandler) StartVerification(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	session, _, err := h.verification.StartVerification(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.StartVerificationResponse{
		SessionID:    session.ID,
		AttemptsLeft: session.AttemptsLeft,
		ExpiresAt:    session.ExpiresAt,
	}})
}

// ResetPassword POST /api/cs/tickets/:id/reset-password.
func (h *AgentTicketsHandler) ResetPassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	password, grant, err := h.gate.ResetPassword(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ResetPasswordResponse{
		GrantID:     grant.ID,
		NewPassword: password,
		IssuedAt:    grant.IssuedAt,
	}})
}
