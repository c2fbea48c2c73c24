package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/stepup-helpdesk/internal/api/dto"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/service"
)

// AuditHandler serves the auditor review surface.
type AuditHandler struct {
	audit   *service.AuditService
	tickets *service.TicketService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(auditService *service.AuditService, ticketService *service.TicketService) *AuditHandler {
	return &AuditHandler{audit: auditService, tickets: ticketService}
}

// ListEntries GET /api/auditor/logs. Accepts an optional ticket_id
// filter; entries come back in insertion order.
func (h *AuditHandler) ListEntries(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	var ticketID *string
	if v := c.Query("ticket_id"); v != "" {
		ticketID = &v
	}
	entries, err := h.audit.List(c.UserContext(), ticketID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditEntryResponses(entries)})
}

// ListTickets GET /api/auditor/tickets. Participants are labeled by
// pseudonymous hash, never by raw id.
func (h *AuditHandler) ListTickets(c *fiber.Ctx) error {
	limit, offset := parsePage(c)
	tickets, err := h.tickets.ListAllTickets(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": auditTicketSummaries(h.audit.TicketViews(tickets))})
}

// TicketReview GET /api/auditor/tickets/:id joins the ticket's
// transcript with its audit trail. Message authors are pseudonymized
// with the same mapping as the trail entries.
func (h *AuditHandler) TicketReview(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	msgs, err := h.tickets.AuditorTranscript(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	entries, err := h.audit.List(c.UserContext(), &ticketID, 0, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketAuditResponse{
		TicketID: ticketID,
		Messages: auditChatMessages(h.audit.TranscriptView(msgs)),
		Entries:  auditEntryResponses(entries),
	}})
}

func auditTicketSummaries(views []service.TicketView) []dto.AuditTicketSummary {
	items := make([]dto.AuditTicketSummary, 0, len(views))
	for _, view := range views {
		items = append(items, dto.AuditTicketSummary{
			ID:            view.Ticket.ID,
			ExternalKey:   view.Ticket.ExternalKey,
			Subject:       view.Ticket.Subject,
			State:         view.Ticket.State,
			UserHash:      view.UserHash,
			ClaimedByHash: view.ClaimedByHash,
			CreatedAt:     view.Ticket.CreatedAt,
			UpdatedAt:     view.Ticket.UpdatedAt,
			ClosedAt:      view.Ticket.ClosedAt,
		})
	}
	return items
}

func auditChatMessages(views []service.TranscriptMessage) []dto.AuditChatMessage {
	items := make([]dto.AuditChatMessage, 0, len(views))
	for _, view := range views {
		items = append(items, dto.AuditChatMessage{
			ID:         view.Message.ID,
			AuthorType: view.Message.AuthorType,
			AuthorHash: view.AuthorHash,
			Body:       view.Message.Body,
			CreatedAt:  view.Message.CreatedAt,
		})
	}
	return items
}

func auditEntryResponses(entries []domain.AuditLogEntry) []dto.AuditEntryResponse {
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.AuditEntryResponse{
			Seq:       entry.Seq,
			ID:        entry.ID,
			Timestamp: entry.Timestamp,
			ActorRole: entry.ActorRole,
			ActorHash: entry.ActorHash,
			Action:    entry.Action,
			TicketID:  entry.TicketID,
			Result:    entry.Result,
			Context:   entry.Context,
		})
	}
	return items
}
