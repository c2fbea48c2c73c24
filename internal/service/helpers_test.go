package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/stepup-helpdesk/internal/auth"
	"github.com/spec-kit/stepup-helpdesk/internal/config"
	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/events"
	"github.com/spec-kit/stepup-helpdesk/internal/observability"
	"github.com/spec-kit/stepup-helpdesk/internal/persistence"
	"github.com/spec-kit/stepup-helpdesk/internal/repository"
)

// fakeStore is an in-memory stand-in for every repository. All methods
// take the same mutex, which mirrors the serialization the database
// provides through row locks and conditional updates.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]*domain.User
	questions     map[string][]domain.ChallengeQuestion
	tickets       map[string]*domain.Ticket
	messages      map[string][]domain.ChatMessage
	sessions      map[string]*domain.VerificationSession
	sessionByHash map[string]string
	grants        map[string]*domain.PrivilegedGrant
	audit         []domain.AuditLogEntry
	seq           int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*domain.User),
		questions:     make(map[string][]domain.ChallengeQuestion),
		tickets:       make(map[string]*domain.Ticket),
		messages:      make(map[string][]domain.ChatMessage),
		sessions:      make(map[string]*domain.VerificationSession),
		sessionByHash: make(map[string]string),
		grants:        make(map[string]*domain.PrivilegedGrant),
	}
}

func (f *fakeStore) appendAuditLocked(entry *domain.AuditLogEntry) {
	f.seq++
	entry.Seq = f.seq
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now()
	f.audit = append(f.audit, *entry)
}

// UserRepository.

func (f *fakeStore) Create(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeStore) CreateWithQuestions(ctx context.Context, user *domain.User, questions []domain.ChallengeQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].UserID = user.ID
		questions[i].CreatedAt = time.Now()
		f.questions[user.ID] = append(f.questions[user.ID], questions[i])
	}
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeStore) Update(ctx context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *user
	copied.UpdatedAt = time.Now()
	f.users[user.ID] = &copied
	return nil
}

// QuestionRepository.

func (f *fakeStore) CreateBatch(ctx context.Context, questions []domain.ChallengeQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].CreatedAt = time.Now()
		f.questions[questions[i].UserID] = append(f.questions[questions[i].UserID], questions[i])
	}
	return nil
}

func (f *fakeStore) PickForUser(ctx context.Context, userID string, count int) ([]domain.ChallengeQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bank := f.questions[userID]
	if len(bank) > count {
		bank = bank[:count]
	}
	return append([]domain.ChallengeQuestion{}, bank...), nil
}

func (f *fakeStore) CountForUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.questions[userID]), nil
}

// TicketRepository. CreateTicket is distinguished from the user Create by
// parameter type, so the fake satisfies both interfaces with separate
// method names via adapters below.

type fakeTicketRepo struct{ *fakeStore }

func (f fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	f.tickets[ticket.ID] = &copied
	return nil
}

func (f fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (f fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if filter.UserID != nil && ticket.UserID != *filter.UserID {
			continue
		}
		if filter.ClaimedBy != nil && (ticket.ClaimedBy == nil || *ticket.ClaimedBy != *filter.ClaimedBy) {
			continue
		}
		if len(filter.States) > 0 {
			matched := false
			for _, state := range filter.States {
				if ticket.State == state {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (f fakeTicketRepo) Claim(ctx context.Context, ticketID, agentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok || ticket.State != domain.TicketStateOpen {
		return false, nil
	}
	ticket.State = domain.TicketStateClaimed
	ticket.ClaimedBy = &agentID
	ticket.UpdatedAt = time.Now()
	return true, nil
}

func (f fakeTicketRepo) TransitionState(ctx context.Context, ticketID string, from, to domain.TicketState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok || ticket.State != from {
		return false, nil
	}
	ticket.State = to
	ticket.UpdatedAt = time.Now()
	return true, nil
}

func (f fakeTicketRepo) CloseWithMessage(ctx context.Context, ticketID string, closure *domain.ChatMessage, entry *domain.AuditLogEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[ticketID]
	if !ok || ticket.State == domain.TicketStateClosed {
		return false, nil
	}
	now := time.Now()
	ticket.State = domain.TicketStateClosed
	ticket.ClosedAt = &now
	ticket.UpdatedAt = now
	closure.ID = uuid.NewString()
	closure.CreatedAt = now
	f.messages[ticketID] = append(f.messages[ticketID], *closure)
	f.appendAuditLocked(entry)
	return true, nil
}

// ChatRepository.

type fakeChatRepo struct{ *fakeStore }

func (f fakeChatRepo) Create(ctx context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[msg.TicketID]
	if !ok || ticket.State == domain.TicketStateClosed {
		return pgx.ErrNoRows
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()
	f.messages[msg.TicketID] = append(f.messages[msg.TicketID], *msg)
	return nil
}

func (f fakeChatRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMessage{}, f.messages[ticketID]...), nil
}

// AuditRepository.

type fakeAuditRepo struct{ *fakeStore }

func (f fakeAuditRepo) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendAuditLocked(entry)
	return nil
}

func (f fakeAuditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]domain.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditLogEntry
	for _, entry := range f.audit {
		if filter.TicketID != nil && (entry.TicketID == nil || *entry.TicketID != *filter.TicketID) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// VerificationRepository.

type fakeVerificationRepo struct{ *fakeStore }

func (f fakeVerificationRepo) Create(ctx context.Context, session *domain.VerificationSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.TicketID == session.TicketID && existing.Status == domain.VerificationPending {
			return &pgconn.PgError{Code: "23505", ConstraintName: "idx_verification_sessions_pending"}
		}
	}
	session.ID = uuid.NewString()
	session.IssuedAt = time.Now()
	session.UpdatedAt = session.IssuedAt
	copied := *session
	f.sessions[session.ID] = &copied
	f.sessionByHash[session.TokenHash] = session.ID
	return nil
}

func (f fakeVerificationRepo) GetByID(ctx context.Context, id string) (*domain.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (f fakeVerificationRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessionByHash[tokenHash]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *f.sessions[id]
	return &copied, nil
}

func (f fakeVerificationRepo) GetLatestByTicket(ctx context.Context, ticketID string) (*domain.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *domain.VerificationSession
	for _, session := range f.sessions {
		if session.TicketID != ticketID {
			continue
		}
		if latest == nil || session.IssuedAt.After(latest.IssuedAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (f fakeVerificationRepo) MutateByTokenHash(ctx context.Context, tokenHash string, fn func(*domain.VerificationSession) (*repository.AttemptEffects, error)) (*domain.VerificationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessionByHash[tokenHash]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	working := *f.sessions[id]
	effects, err := fn(&working)
	if err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	f.sessions[id] = &working

	if effects != nil {
		if effects.LockTicket {
			if ticket, ok := f.tickets[working.TicketID]; ok && ticket.State == domain.TicketStateClaimed {
				ticket.State = domain.TicketStateLocked
				ticket.UpdatedAt = time.Now()
			}
		}
		if effects.RiskDelta != 0 {
			if user, ok := f.users[working.SubjectUserID]; ok {
				user.RiskScore += effects.RiskDelta
				if user.RiskScore < 0 {
					user.RiskScore = 0
				}
			}
		}
		for _, entry := range effects.Audit {
			f.appendAuditLocked(entry)
		}
	}
	copied := working
	return &copied, nil
}

// GrantRepository.

type fakeGrantRepo struct{ *fakeStore }

func (f fakeGrantRepo) CreateFromSession(ctx context.Context, grant *domain.PrivilegedGrant, subjectUserID, newPasswordHash string, entry *domain.AuditLogEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[grant.SessionID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if !session.Fresh(time.Now()) {
		return false, nil
	}
	if _, exists := f.grants[grant.SessionID]; exists {
		return false, nil
	}
	grant.ID = uuid.NewString()
	grant.IssuedAt = time.Now()
	copied := *grant
	f.grants[grant.SessionID] = &copied
	if user, ok := f.users[subjectUserID]; ok {
		user.PasswordHash = newPasswordHash
	}
	f.appendAuditLocked(entry)
	return true, nil
}

func (f fakeGrantRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.PrivilegedGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.PrivilegedGrant
	for _, grant := range f.grants {
		if grant.TicketID == ticketID {
			result = append(result, *grant)
		}
	}
	return result, nil
}

// testEnv wires the full service stack over the fake store.
type testEnv struct {
	store        *fakeStore
	cfg          config.Config
	audit        *AuditService
	auth         *AuthService
	tickets      *TicketService
	verification *VerificationService
	gate         *GateService
	metrics      *observability.Metrics
	dispatcher   events.Dispatcher
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	cfg := config.Config{
		App: config.AppConfig{
			Name:          "stepup-helpdesk-test",
			PublicBaseURL: "http://localhost:3000",
		},
		Auth: config.AuthConfig{
			JWTSecret:             "test-jwt-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            4,
			PseudonymSecret:       "test-pseudonym-secret",
		},
		Verification: config.VerificationConfig{
			SessionTTLMinutes:     10,
			ValidityWindowMinutes: 10,
			AttemptBudget:         3,
			QuestionCount:         3,
		},
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	auditService := NewAuditService(fakeAuditRepo{store}, auth.NewPseudonymizer(cfg.Auth.PseudonymSecret))

	return &testEnv{
		store:      store,
		cfg:        cfg,
		audit:      auditService,
		metrics:    metrics,
		dispatcher: dispatcher,
		auth: NewAuthService(cfg, AuthDependencies{
			UserRepo: store,
			Audit:    auditService,
		}),
		tickets: NewTicketService(TicketDependencies{
			TicketRepo: fakeTicketRepo{store},
			ChatRepo:   fakeChatRepo{store},
			Audit:      auditService,
			Dispatcher: dispatcher,
			Metrics:    metrics,
		}),
		verification: NewVerificationService(cfg, VerificationDependencies{
			TicketRepo:   fakeTicketRepo{store},
			SessionRepo:  fakeVerificationRepo{store},
			QuestionRepo: store,
			Audit:        auditService,
			TokenCache:   persistence.NewTokenCache(nil),
			Dispatcher:   dispatcher,
			Metrics:      metrics,
		}),
		gate: NewGateService(cfg, GateDependencies{
			TicketRepo:  fakeTicketRepo{store},
			SessionRepo: fakeVerificationRepo{store},
			GrantRepo:   fakeGrantRepo{store},
			Audit:       auditService,
			Dispatcher:  dispatcher,
			Metrics:     metrics,
		}),
	}
}

func (e *testEnv) addUser(role domain.Role) *domain.User {
	user := &domain.User{
		Name:   "user-" + uuid.NewString()[:8],
		Email:  uuid.NewString()[:8] + "@example.com",
		Role:   role,
		Status: domain.UserStatusActive,
	}
	if err := e.store.Create(context.Background(), user); err != nil {
		panic(err)
	}
	return user
}

func (e *testEnv) addQuestions(userID string, answers ...string) []domain.ChallengeQuestion {
	questions := make([]domain.ChallengeQuestion, 0, len(answers))
	for _, answer := range answers {
		questions = append(questions, domain.ChallengeQuestion{
			UserID:       userID,
			Category:     "personal",
			QuestionText: "question " + uuid.NewString()[:4],
			AnswerHash:   HashAnswer(answer),
		})
	}
	if err := e.store.CreateBatch(context.Background(), questions); err != nil {
		panic(err)
	}
	return questions
}

func (e *testEnv) addTicket(user *domain.User) *domain.Ticket {
	ticket, err := e.tickets.CreateTicket(context.Background(), user, "cannot log in")
	if err != nil {
		panic(err)
	}
	return ticket
}

func (e *testEnv) claimedTicket(user *domain.User, agent *domain.User) *domain.Ticket {
	ticket := e.addTicket(user)
	claimed, err := e.tickets.Claim(context.Background(), agent, ticket.ID)
	if err != nil {
		panic(err)
	}
	return claimed
}

func (e *testEnv) auditEntries(ticketID string) []domain.AuditLogEntry {
	entries, err := e.audit.List(context.Background(), &ticketID, 0, 0)
	if err != nil {
		panic(err)
	}
	return entries
}
