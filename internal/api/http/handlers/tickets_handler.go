package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/dto"
	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// TicketsHandler manages end-user ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/user/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("subject required", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), principal.User, req.Subject)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /api/user/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	limit, offset := parsePage(c)
	tickets, err := h.service.ListUserTickets(c.UserContext(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetTicket GET /api/user/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.GetTicketForUser(c.UserContext(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}
	msgs, err := h.service.Transcript(c.UserContext(), principal.User, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs)})
}

// GetChat GET /api/user/tickets/:id/chat.
func (h *TicketsHandler) GetChat(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	msgs, err := h.service.Transcript(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": chatMessageResponses(msgs)})
}

// AddMessage POST /api/user/tickets/:id/chat.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}

	msg, err := h.service.PostMessage(c.UserContext(), principal.User, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": chatMessageResponse(msg)})
}

// CloseTicket POST /api/user/tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.Close(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

func parsePage(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		UserID:      ticket.UserID,
		Subject:     ticket.Subject,
		State:       ticket.State,
		ClaimedBy:   ticket.ClaimedBy,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketDetail(ticket *domain.Ticket, messages []domain.ChatMessage) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Messages:      chatMessageResponses(messages),
	}
}

func chatMessageResponse(msg *domain.ChatMessage) dto.ChatMessageResponse {
	return dto.ChatMessageResponse{
		ID:         msg.ID,
		AuthorType: msg.AuthorType,
		AuthorID:   msg.AuthorID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}

func chatMessageResponses(messages []domain.ChatMessage) []dto.ChatMessageResponse {
	items := make([]dto.ChatMessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, chatMessageResponse(&messages[i]))
	}
	return items
}
