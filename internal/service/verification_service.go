package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/stepup-helpdesk/internal/config"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/observability"
	"github.com/spec-kit/stepup-helpdesk/internal/persistence"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// Risk score adjustments applied on challenge outcomes.
const (
	riskDeltaPass    = -1
	riskDeltaFail    = 2
	riskDeltaLockout = 5
)

const uniqueViolationCode = "23505"

// ChallengeView is the client-safe projection of a session question.
type ChallengeView struct {
	QuestionID   string
	QuestionText string
}

// VerificationService issues and evaluates step-up identity challenges.
type VerificationService struct {
	tickets    repository.TicketRepository
	sessions   repository.VerificationRepository
	questions  repository.QuestionRepository
	audit      *AuditService
	cache      *persistence.TokenCache
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	cfg        config.VerificationConfig
	baseURL    string
}

// VerificationDependencies bundles collaborator requirements.
type VerificationDependencies struct {
	TicketRepo   repository.TicketRepository
	SessionRepo  repository.VerificationRepository
	QuestionRepo repository.QuestionRepository
	Audit        *AuditService
	TokenCache   *persistence.TokenCache
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
}

// NewVerificationService builds the service.
func NewVerificationService(cfg config.Config, deps VerificationDependencies) *VerificationService {
	return &VerificationService{
		tickets:    deps.TicketRepo,
		sessions:   deps.SessionRepo,
		questions:  deps.QuestionRepo,
		audit:      deps.Audit,
		cache:      deps.TokenCache,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		cfg:        cfg.Verification,
		baseURL:    strings.TrimRight(cfg.App.PublicBaseURL, "/"),
	}
}

// StartVerification issues a PENDING session for the ticket's owning user
// and returns the one-time bearer token. Requires the caller to be the
// claiming agent of a CLAIMED ticket; at most one PENDING session may
// exist per ticket.
func (s *VerificationService) StartVerification(ctx context.Context, agent *domain.User, ticketID string) (*domain.VerificationSession, string, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, "", err
	}
	if ticket.State != domain.TicketStateClaimed || ticket.ClaimedBy == nil || *ticket.ClaimedBy != agent.ID {
		if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionVerificationStart, &ticket.ID, domain.AuditDenied, "not claimant"); err != nil {
			return nil, "", err
		}
		return nil, "", apperrors.NewNotClaimedByYou(ticketID)
	}

	if latest, err := s.sessions.GetLatestByTicket(ctx, ticket.ID); err == nil {
		if latest.Status == domain.VerificationPending {
			if !latest.Expired(time.Now()) {
				if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionVerificationStart, &ticket.ID, domain.AuditDenied, "verification already active"); err != nil {
					return nil, "", err
				}
				return nil, "", apperrors.NewVerificationAlreadyActive(ticketID)
			}
			// Lazily retire the stale PENDING session so the new one can
			// take its place.
			if err := s.expireSession(ctx, latest.TokenHash); err != nil {
				return nil, "", err
			}
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", err
	}

	bank, err := s.questions.PickForUser(ctx, ticket.UserID, s.cfg.QuestionCount)
	if err != nil {
		return nil, "", err
	}
	if len(bank) < s.cfg.QuestionCount {
		if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionVerificationStart, &ticket.ID, domain.AuditDenied, "question bank not provisioned"); err != nil {
			return nil, "", err
		}
		return nil, "", apperrors.NewValidationError("subject user has no registered challenge questions", nil)
	}

	token, tokenHash, err := newBearerToken()
	if err != nil {
		return nil, "", err
	}

	snapshot := make([]domain.SessionQuestion, 0, len(bank))
	for _, q := range bank {
		snapshot = append(snapshot, domain.SessionQuestion{
			QuestionID:   q.ID,
			QuestionText: q.QuestionText,
			AnswerHash:   q.AnswerHash,
		})
	}

	session := &domain.VerificationSession{
		TicketID:      ticket.ID,
		SubjectUserID: ticket.UserID,
		AgentID:       agent.ID,
		TokenHash:     tokenHash,
		Status:        domain.VerificationPending,
		Questions:     snapshot,
		AttemptsLeft:  s.cfg.AttemptBudget,
		ExpiresAt:     time.Now().Add(s.cfg.SessionTTL()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Another start won the race for the single PENDING slot.
			return nil, "", apperrors.NewVerificationAlreadyActive(ticketID)
		}
		return nil, "", err
	}

	s.cache.Put(ctx, tokenHash, session.ID, s.cfg.SessionTTL())
	if err := s.audit.Record(ctx, agent.Role, agent.ID, domain.AuditActionVerificationStart, &ticket.ID, domain.AuditSuccess,
		fmt.Sprintf("session=%s", session.ID)); err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventVerificationStarted,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: agent.Role, UserID: agent.ID},
		Payload: events.VerificationStartedPayload{
			SessionID:     session.ID,
			SubjectUserID: ticket.UserID,
			VerifyURL:     s.baseURL + "/verify/" + token,
			ExpiresAt:     session.ExpiresAt,
		},
	})
	return session, token, nil
}

// GetChallenge returns the question texts for a PENDING session. The
// token is the sole credential; an expired session is retired on read.
func (s *VerificationService) GetChallenge(ctx context.Context, token string) ([]ChallengeView, error) {
	session, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.VerificationPending {
		return nil, apperrors.NewInvalidOrExpiredToken()
	}
	if session.Expired(time.Now()) {
		if err := s.expireSession(ctx, session.TokenHash); err != nil {
			return nil, err
		}
		return nil, apperrors.NewInvalidOrExpiredToken()
	}

	views := make([]ChallengeView, 0, len(session.Questions))
	for _, q := range session.Questions {
		views = append(views, ChallengeView{QuestionID: q.QuestionID, QuestionText: q.QuestionText})
	}
	return views, nil
}

// SubmitAnswers evaluates one attempt. All answers must match their
// stored hashes for a PASS; any mismatch burns one attempt, and burning
// the last one fails the session permanently and locks the ticket. The
// session update, audit entries, lockout and risk adjustment commit
// atomically. On a PASS the updated session is returned so callers can
// surface the validity window.
func (s *VerificationService) SubmitAnswers(ctx context.Context, token string, answers map[string]string) (*domain.VerificationSession, error) {
	tokenHash := hashToken(token)

	var outcome struct {
		passed    bool
		exhausted bool
		invalid   bool
		left      int
	}
	session, err := s.sessions.MutateByTokenHash(ctx, tokenHash, func(sess *domain.VerificationSession) (*repository.AttemptEffects, error) {
		now := time.Now()
		if sess.Status != domain.VerificationPending {
			outcome.invalid = true
			return nil, nil
		}
		if sess.Expired(now) {
			sess.Status = domain.VerificationExpired
			outcome.invalid = true
			return nil, nil
		}

		if matchAnswers(sess.Questions, answers) {
			sess.Status = domain.VerificationPassed
			validUntil := now.Add(s.cfg.ValidityWindow())
			sess.ValidUntil = &validUntil
			outcome.passed = true
			return &repository.AttemptEffects{
				Audit: []*domain.AuditLogEntry{
					s.audit.Entry(domain.RoleEndUser, sess.SubjectUserID, domain.AuditActionVerificationTry, &sess.TicketID, domain.AuditSuccess,
						fmt.Sprintf("session=%s passed", sess.ID)),
				},
				RiskDelta: riskDeltaPass,
			}, nil
		}

		sess.AttemptsLeft--
		outcome.left = sess.AttemptsLeft
		if sess.AttemptsLeft <= 0 {
			sess.Status = domain.VerificationFailed
			outcome.exhausted = true
			return &repository.AttemptEffects{
				Audit: []*domain.AuditLogEntry{
					s.audit.Entry(domain.RoleEndUser, sess.SubjectUserID, domain.AuditActionVerificationTry, &sess.TicketID, domain.AuditFailed,
						fmt.Sprintf("session=%s attempts exhausted", sess.ID)),
					s.audit.Entry(domain.RoleEndUser, sess.SubjectUserID, domain.AuditActionTicketLock, &sess.TicketID, domain.AuditSuccess,
						"verification attempts exhausted"),
				},
				LockTicket: true,
				RiskDelta:  riskDeltaFail + riskDeltaLockout,
			}, nil
		}
		return &repository.AttemptEffects{
			Audit: []*domain.AuditLogEntry{
				s.audit.Entry(domain.RoleEndUser, sess.SubjectUserID, domain.AuditActionVerificationTry, &sess.TicketID, domain.AuditFailed,
					fmt.Sprintf("session=%s attempts_left=%d", sess.ID, sess.AttemptsLeft)),
			},
			RiskDelta: riskDeltaFail,
		}, nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidOrExpiredToken()
		}
		return nil, err
	}

	switch {
	case outcome.invalid:
		s.cache.Delete(ctx, tokenHash)
		return nil, apperrors.NewInvalidOrExpiredToken()
	case outcome.passed:
		s.cache.Delete(ctx, tokenHash)
		s.metrics.RecordDecision(observability.CounterVerificationsPassed)
		s.publish(ctx, events.Event{
			Type:     events.EventVerificationPassed,
			TicketID: session.TicketID,
			Actor:    events.Actor{Role: domain.RoleEndUser, UserID: session.SubjectUserID},
			Payload:  events.VerificationOutcomePayload{SessionID: session.ID},
		})
		return session, nil
	case outcome.exhausted:
		s.cache.Delete(ctx, tokenHash)
		s.metrics.RecordDecision(observability.CounterVerificationsFailed)
		s.metrics.RecordDecision(observability.CounterLockouts)
		s.publish(ctx, events.Event{
			Type:     events.EventVerificationFailed,
			TicketID: session.TicketID,
			Actor:    events.Actor{Role: domain.RoleEndUser, UserID: session.SubjectUserID},
			Payload:  events.VerificationOutcomePayload{SessionID: session.ID, Locked: true},
		})
		s.publish(ctx, events.Event{
			Type:     events.EventTicketLocked,
			TicketID: session.TicketID,
			Actor:    events.Actor{Role: domain.RoleEndUser, UserID: session.SubjectUserID},
			Payload:  events.VerificationOutcomePayload{SessionID: session.ID, Locked: true},
		})
		return nil, apperrors.NewAttemptsExhausted()
	default:
		s.metrics.RecordDecision(observability.CounterVerificationsFailed)
		s.publish(ctx, events.Event{
			Type:     events.EventVerificationFailed,
			TicketID: session.TicketID,
			Actor:    events.Actor{Role: domain.RoleEndUser, UserID: session.SubjectUserID},
			Payload:  events.VerificationOutcomePayload{SessionID: session.ID, AttemptsLeft: outcome.left},
		})
		return nil, apperrors.NewVerificationFailed(outcome.left)
	}
}

func (s *VerificationService) lookup(ctx context.Context, token string) (*domain.VerificationSession, error) {
	tokenHash := hashToken(token)
	if sessionID := s.cache.Get(ctx, tokenHash); sessionID != "" {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err == nil && session.TokenHash == tokenHash {
			return session, nil
		}
	}
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewInvalidOrExpiredToken()
		}
		return nil, err
	}
	return session, nil
}

func (s *VerificationService) expireSession(ctx context.Context, tokenHash string) error {
	_, err := s.sessions.MutateByTokenHash(ctx, tokenHash, func(sess *domain.VerificationSession) (*repository.AttemptEffects, error) {
		if sess.Status == domain.VerificationPending && sess.Expired(time.Now()) {
			sess.Status = domain.VerificationExpired
		}
		return nil, nil
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	s.cache.Delete(ctx, tokenHash)
	return nil
}

func (s *VerificationService) publish(ctx context.Context, event events.Event) {
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

func matchAnswers(questions []domain.SessionQuestion, answers map[string]string) bool {
	for _, q := range questions {
		answer, ok := answers[q.QuestionID]
		if !ok || HashAnswer(answer) != q.AnswerHash {
			return false
		}
	}
	return true
}

// NormalizeAnswer collapses case and whitespace so comparison is an
// exact match on the normalized form. No fuzzy matching.
func NormalizeAnswer(answer string) string {
	return strings.Join(strings.Fields(strings.ToLower(answer)), " ")
}

// HashAnswer returns the stored digest of an expected answer.
func HashAnswer(answer string) string {
	sum := sha256.Sum256([]byte(NormalizeAnswer(answer)))
	return hex.EncodeToString(sum[:])
}

func newBearerToken() (token, tokenHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
