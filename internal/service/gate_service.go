package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/config"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/observability"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// GateService authorizes privileged actions against fresh verification
// outcomes. Every denial path yields the same generic error so callers
// cannot probe which precondition failed.
type GateService struct {
	tickets    repository.TicketRepository
	sessions   repository.VerificationRepository
	grants     repository.GrantRepository
	audit      *AuditService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	bcryptCost int
}

// GateDependencies bundles collaborator requirements.
type GateDependencies struct {
	TicketRepo  repository.TicketRepository
	SessionRepo repository.VerificationRepository
	GrantRepo   repository.GrantRepository
	Audit       *AuditService
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
}

// NewGateService builds the service.
func NewGateService(cfg config.Config, deps GateDependencies) *GateService {
	return &GateService{
		tickets:    deps.TicketRepo,
		sessions:   deps.SessionRepo,
		grants:     deps.GrantRepo,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// ResetPassword executes the privileged reset for the ticket's owning
// user. It requires the caller to be the claiming agent of a CLAIMED
// ticket with a PASSED verification session still inside its validity
// window, and it consumes that session: a second call against the same
// session is denied. On success the rotated password is returned once
// for the agent to relay; it is never persisted in clear.
func (s *GateService) ResetPassword(ctx context.Context, agent *domain.User, ticketID string) (string, *domain.PrivilegedGrant, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, s.deny(ctx, agent, nil, "ticket not found")
		}
		return "", nil, err
	}
	if ticket.State != domain.TicketStateClaimed || ticket.ClaimedBy == nil || *ticket.ClaimedBy != agent.ID {
		return "", nil, s.deny(ctx, agent, &ticket.ID, "caller is not the claimant of a claimed ticket")
	}

	session, err := s.sessions.GetLatestByTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, s.deny(ctx, agent, &ticket.ID, "no verification session")
		}
		return "", nil, err
	}
	if !session.Fresh(time.Now()) {
		return "", nil, s.deny(ctx, agent, &ticket.ID, "verification not fresh")
	}

	password, err := newPasswordArtifact()
	if err != nil {
		return "", nil, err
	}
	passwordHash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return "", nil, err
	}

	grant := &domain.PrivilegedGrant{
		TicketID:  ticket.ID,
		SessionID: session.ID,
		Action:    domain.GrantActionPasswordReset,
		ExpiresAt: *session.ValidUntil,
		Consumed:  true,
	}
	entry := s.audit.Entry(agent.Role, agent.ID, domain.AuditActionPasswordReset, &ticket.ID, domain.AuditSuccess,
		fmt.Sprintf("action=%s session=%s", domain.GrantActionPasswordReset, session.ID))
	ok, err := s.grants.CreateFromSession(ctx, grant, ticket.UserID, passwordHash, entry)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		// The session lost freshness or its grant slot under the row
		// lock. Same generic denial as every other path.
		return "", nil, s.deny(ctx, agent, &ticket.ID, "grant refused")
	}

	s.metrics.RecordDecision(observability.CounterResetsExecuted)
	s.publish(ctx, events.Event{
		Type:     events.EventPasswordResetGranted,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: agent.Role, UserID: agent.ID},
		Payload:  events.PasswordResetGrantedPayload{GrantID: grant.ID, SessionID: session.ID},
	})
	return password, grant, nil
}

// GrantsForTicket lists issued grants, for the auditor surface.
func (s *GateService) GrantsForTicket(ctx context.Context, ticketID string) ([]domain.PrivilegedGrant, error) {
	return s.grants.ListByTicket(ctx, ticketID)
}

func (s *GateService) deny(ctx context.Context, agent *domain.User, ticketID *string, reason string) error {
	s.metrics.RecordDecision(observability.CounterResetsDenied)
	if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionPasswordReset, ticketID, domain.AuditDenied, reason); err != nil {
		return err
	}
	return apperrors.NewAccessDenied()
}

func (s *GateService) publish(ctx context.Context, event events.Event) {
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

func newPasswordArtifact() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
