package service

import (
	"context"

	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
)

// AuditService writes and serves the append-only security trail. Records
// are committed before the triggering operation reports success; a failed
// append fails the operation.
type AuditService struct {
	entries repository.AuditRepository
	pseudo  *auth.Pseudonymizer
}

// NewAuditService builds the service.
func NewAuditService(entries repository.AuditRepository, pseudo *auth.Pseudonymizer) *AuditService {
	return &AuditService{entries: entries, pseudo: pseudo}
}

// Entry builds an audit entry with the actor pseudonymized. Used by
// callers that persist the entry inside their own transaction.
func (s *AuditService) Entry(role domain.Role, actorID, action string, ticketID *string, result domain.AuditResult, context string) *domain.AuditLogEntry {
	return &domain.AuditLogEntry{
		ActorRole: role,
		ActorHash: s.pseudo.Hash(role, actorID),
		Action:    action,
		TicketID:  ticketID,
		Result:    result,
		Context:   context,
	}
}

// Record pseudonymizes the actor and appends one entry.
func (s *AuditService) Record(ctx context.Context, role domain.Role, actorID, action string, ticketID *string, result domain.AuditResult, context string) error {
	return s.entries.Append(ctx, s.Entry(role, actorID, action, ticketID, result, context))
}

// List returns entries in insertion order for the auditor view.
func (s *AuditService) List(ctx context.Context, ticketID *string, limit, offset int) ([]domain.AuditLogEntry, error) {
	return s.entries.List(ctx, repository.AuditFilter{
		TicketID: ticketID,
		Limit:    limit,
		Offset:   offset,
	})
}

// ActorHash exposes the pseudonymous mapping for views that must label
// actors without revealing identity.
func (s *AuditService) ActorHash(role domain.Role, actorID string) string {
	return s.pseudo.Hash(role, actorID)
}

// TicketView is a ticket with its participants replaced by pseudonymous
// hashes. Raw user ids never leave the service on the auditor surface.
type TicketView struct {
	Ticket        domain.Ticket
	UserHash      string
	ClaimedByHash *string
}

// TicketViews pseudonymizes the participants of each ticket for the
// auditor roll-up.
func (s *AuditService) TicketViews(tickets []domain.Ticket) []TicketView {
	views := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		view := TicketView{
			Ticket:   t,
			UserHash: s.ActorHash(domain.RoleEndUser, t.UserID),
		}
		if t.ClaimedBy != nil {
			hash := s.ActorHash(domain.RoleAgent, *t.ClaimedBy)
			view.ClaimedByHash = &hash
		}
		views = append(views, view)
	}
	return views
}

// TranscriptMessage pairs a chat message with its author's pseudonymous
// hash. SYSTEM messages carry no author.
type TranscriptMessage struct {
	Message    domain.ChatMessage
	AuthorHash *string
}

// TranscriptView pseudonymizes message authors for the auditor
// transcript. Hashes use the same keyed mapping as the trail entries so
// an auditor can correlate a chat author with the audit log.
func (s *AuditService) TranscriptView(messages []domain.ChatMessage) []TranscriptMessage {
	views := make([]TranscriptMessage, 0, len(messages))
	for _, msg := range messages {
		view := TranscriptMessage{Message: msg}
		if msg.AuthorID != nil {
			var role domain.Role
			switch msg.AuthorType {
			case domain.AuthorTypeUser:
				role = domain.RoleEndUser
			case domain.AuthorTypeAgent:
				role = domain.RoleAgent
			}
			if role != "" {
				hash := s.ActorHash(role, *msg.AuthorID)
				view.AuthorHash = &hash
			}
		}
		views = append(views, view)
	}
	return views
}
