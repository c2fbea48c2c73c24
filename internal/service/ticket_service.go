package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/observability"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// TicketService coordinates the ticket lifecycle: creation, claim
// arbitration, chat and atomic closure.
type TicketService struct {
	tickets    repository.TicketRepository
	chat       repository.ChatRepository
	audit      *AuditService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	ChatRepo   repository.ChatRepository
	Audit      *AuditService
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		chat:       deps.ChatRepo,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
	}
}

// CreateTicket opens a ticket for the user.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, subject string) (*domain.Ticket, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject required", nil)
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		UserID:      user.ID,
		Subject:     subject,
		State:       domain.TicketStateOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, user.Role, user.ID, domain.AuditActionTicketCreate, &ticket.ID, domain.AuditSuccess, ""); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: user.Role, UserID: user.ID},
	})
	return ticket, nil
}

// Claim assigns an OPEN ticket to the agent via a single compare-and-set;
// under concurrent claims exactly one caller wins. Re-claim by the
// current claimant is a no-op success and is not audited again.
func (s *TicketService) Claim(ctx context.Context, agent *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.tickets.Claim(ctx, ticketID, agent.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the CAS, or the ticket had already left OPEN.
		ticket, err = s.getTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		if ticket.State == domain.TicketStateClaimed && ticket.ClaimedBy != nil && *ticket.ClaimedBy == agent.ID {
			return ticket, nil
		}
		s.metrics.RecordDecision(observability.CounterClaimsLost)
		if ticket.State == domain.TicketStateClosed {
			if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionTicketClaim, &ticket.ID, domain.AuditDenied, "ticket closed"); err != nil {
				return nil, err
			}
			return nil, apperrors.NewTicketClosed(ticketID)
		}
		if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionTicketClaim, &ticket.ID, domain.AuditDenied, "already claimed"); err != nil {
			return nil, err
		}
		return nil, apperrors.NewAlreadyClaimed(ticketID)
	}

	s.metrics.RecordDecision(observability.CounterClaimsWon)
	if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionTicketClaim, &ticket.ID, domain.AuditSuccess, ""); err != nil {
		return nil, err
	}
	ticket, err = s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: agent.Role, UserID: agent.ID},
		Payload: events.TicketStateChangedPayload{
			OldState: domain.TicketStateOpen,
			NewState: domain.TicketStateClaimed,
		},
	})
	return ticket, nil
}

// Close moves the ticket to CLOSED, appending the system closure message
// in the same transaction. Allowed for the owning user and the claiming
// agent; irreversible.
func (s *TicketService) Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.canActOnTicket(ctx, actor, ticket, domain.AuditActionTicketClose); err != nil {
		return nil, err
	}

	oldState := ticket.State
	closure := &domain.ChatMessage{
		TicketID:   ticket.ID,
		AuthorType: domain.AuthorTypeSystem,
		Body:       fmt.Sprintf("Ticket closed by %s.", strings.ToLower(string(actor.Role))),
	}
	entry := s.audit.Entry(actor.Role, actor.ID, domain.AuditActionTicketClose, &ticket.ID, domain.AuditSuccess, "")

	closed, err := s.tickets.CloseWithMessage(ctx, ticket.ID, closure, entry)
	if err != nil {
		return nil, err
	}
	if !closed {
		if err := s.audit.Record(ctx, actor.Role, actor.ID, domain.AuditActionTicketClose, &ticket.ID, domain.AuditDenied, "already closed"); err != nil {
			return nil, err
		}
		return nil, apperrors.NewTicketClosed(ticketID)
	}

	ticket, err = s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: actor.Role, UserID: actor.ID},
		Payload: events.TicketStateChangedPayload{
			OldState: oldState,
			NewState: domain.TicketStateClosed,
		},
	})
	return ticket, nil
}

// PostMessage appends a chat message for the owning user or the claiming
// agent. Rejected once the ticket is CLOSED.
func (s *TicketService) PostMessage(ctx context.Context, actor *domain.User, ticketID, body string) (*domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.State == domain.TicketStateClosed {
		return nil, apperrors.NewTicketClosed(ticketID)
	}
	authorType, err := s.chatAuthor(actor, ticket)
	if err != nil {
		return nil, err
	}

	actorID := actor.ID
	msg := &domain.ChatMessage{
		TicketID:   ticket.ID,
		AuthorType: authorType,
		AuthorID:   &actorID,
		Body:       body,
	}
	if err := s.chat.Create(ctx, msg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Guarded insert fired: the ticket closed concurrently.
			return nil, apperrors.NewTicketClosed(ticketID)
		}
		return nil, err
	}
	return msg, nil
}

// Transcript returns the ordered chat history for a ticket, restricted to
// the owning user or the claiming agent.
func (s *TicketService) Transcript(ctx context.Context, actor *domain.User, ticketID string) ([]domain.ChatMessage, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chatAuthor(actor, ticket); err != nil {
		return nil, err
	}
	return s.chat.ListByTicket(ctx, ticket.ID)
}

// GetTicket fetches a ticket without an ownership check; callers behind
// the agent and auditor role gates use it.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// GetTicketForUser fetches a ticket ensuring ownership.
func (s *TicketService) GetTicketForUser(ctx context.Context, userID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, apperrors.NewAccessDenied()
	}
	return ticket, nil
}

// ListUserTickets returns the requester's tickets.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		UserID: &userID,
		Limit:  limit,
		Offset: offset,
	})
}

// ListOpenTickets returns the unclaimed pool for agents.
func (s *TicketService) ListOpenTickets(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		States: []domain.TicketState{domain.TicketStateOpen},
		Limit:  limit,
		Offset: offset,
	})
}

// ListAgentTickets returns tickets currently claimed by the agent.
func (s *TicketService) ListAgentTickets(ctx context.Context, agentID string, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		ClaimedBy: &agentID,
		States:    []domain.TicketState{domain.TicketStateClaimed, domain.TicketStateLocked},
		Limit:     limit,
		Offset:    offset,
	})
}

// ListHandledTickets returns closed tickets the agent handled.
func (s *TicketService) ListHandledTickets(ctx context.Context, agentID string, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		ClaimedBy: &agentID,
		States:    []domain.TicketState{domain.TicketStateClosed},
		Limit:     limit,
		Offset:    offset,
	})
}

// ListAllTickets serves the auditor's rolled-up view.
func (s *TicketService) ListAllTickets(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{Limit: limit, Offset: offset})
}

// AuditorTranscript returns the chat history without an ownership check;
// reserved for the AUDITOR surface.
func (s *TicketService) AuditorTranscript(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.chat.ListByTicket(ctx, ticketID)
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) chatAuthor(actor *domain.User, ticket *domain.Ticket) (domain.MessageAuthorType, error) {
	switch actor.Role {
	case domain.RoleEndUser:
		if ticket.UserID != actor.ID {
			return "", apperrors.NewAccessDenied()
		}
		return domain.AuthorTypeUser, nil
	case domain.RoleAgent:
		if ticket.ClaimedBy == nil || *ticket.ClaimedBy != actor.ID {
			return "", apperrors.NewNotClaimedByYou(ticket.ID)
		}
		return domain.AuthorTypeAgent, nil
	default:
		return "", apperrors.NewAccessDenied()
	}
}

func (s *TicketService) canActOnTicket(ctx context.Context, actor *domain.User, ticket *domain.Ticket, action string) error {
	switch actor.Role {
	case domain.RoleEndUser:
		if ticket.UserID == actor.ID {
			return nil
		}
	case domain.RoleAgent:
		if ticket.ClaimedBy != nil && *ticket.ClaimedBy == actor.ID {
			return nil
		}
		if err := s.audit.Record(ctx, actor.Role, actor.ID, action, &ticket.ID, domain.AuditDenied, "not claimant"); err != nil {
			return err
		}
		return apperrors.NewNotClaimedByYou(ticket.ID)
	}
	if err := s.audit.Record(ctx, actor.Role, actor.ID, action, &ticket.ID, domain.AuditDenied, "not permitted"); err != nil {
		return err
	}
	return apperrors.NewAccessDenied()
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
