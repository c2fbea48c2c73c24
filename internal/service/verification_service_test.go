package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fluffy", "fluffy"},
		{"  FLUFFY  ", "fluffy"},
		{"main   street", "main street"},
		{"Main\tStreet", "main street"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAnswer(tt.in); got != tt.want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashAnswerIgnoresCaseAndSpacing(t *testing.T) {
	if HashAnswer("Fluffy") != HashAnswer("  fluffy ") {
		t.Error("equivalent answers must hash identically")
	}
	if HashAnswer("fluffy") == HashAnswer("rex") {
		t.Error("different answers must not collide")
	}
}

// startSession issues a session and returns it with the raw token and
// a correct answers map.
func startSession(t *testing.T, env *testEnv) (*domain.User, *domain.User, *domain.Ticket, string, map[string]string) {
	t.Helper()
	user := env.addUser(domain.RoleEndUser)
	agent := env.addUser(domain.RoleAgent)
	env.addQuestions(user.ID, "fluffy", "berlin", "van gogh")
	ticket := env.claimedTicket(user, agent)

	_, token, err := env.verification.StartVerification(context.Background(), agent, ticket.ID)
	if err != nil {
		t.Fatalf("StartVerification: %v", err)
	}

	questions, err := env.verification.GetChallenge(context.Background(), token)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	answers := make(map[string]string, len(questions))
	byHash := make(map[string]string)
	for _, answer := range []string{"fluffy", "berlin", "van gogh"} {
		byHash[HashAnswer(answer)] = answer
	}
	env.store.mu.Lock()
	for _, session := range env.store.sessions {
		for _, q := range session.Questions {
			if answer, ok := byHash[q.AnswerHash]; ok {
				answers[q.QuestionID] = answer
			}
		}
	}
	env.store.mu.Unlock()
	if len(answers) != len(questions) {
		t.Fatalf("built %d answers for %d questions", len(answers), len(questions))
	}
	return user, agent, ticket, token, answers
}

func TestStartVerificationRequiresClaimant(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(domain.RoleEndUser)
	claimant := env.addUser(domain.RoleAgent)
	other := env.addUser(domain.RoleAgent)
	env.addQuestions(user.ID, "a", "b", "c")
	ticket := env.claimedTicket(user, claimant)

	_, _, err := env.verification.StartVerification(context.Background(), other, ticket.ID)
	if apperrors.CodeOf(err) != apperrors.CodeNotClaimedByYou {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotClaimedByYou)
	}
}

func TestStartVerificationRejectsOpenTicket(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(domain.RoleEndUser)
	agent := env.addUser(domain.RoleAgent)
	env.addQuestions(user.ID, "a", "b", "c")
	ticket := env.addTicket(user)

	_, _, err := env.verification.StartVerification(context.Background(), agent, ticket.ID)
	if apperrors.CodeOf(err) != apperrors.CodeNotClaimedByYou {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeNotClaimedByYou)
	}
}

func TestStartVerificationSecondSessionRejected(t *testing.T) {
	env := newTestEnv()
	_, agent, ticket, _, _ := startSession(t, env)

	_, _, err := env.verification.StartVerification(context.Background(), agent, ticket.ID)
	if apperrors.CodeOf(err) != apperrors.CodeVerificationActive {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeVerificationActive)
	}
}

func TestGetChallengeOmitsAnswerHashes(t *testing.T) {
	env := newTestEnv()
	_, _, _, token, _ := startSession(t, env)

	questions, err := env.verification.GetChallenge(context.Background(), token)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	if len(questions) != env.cfg.Verification.QuestionCount {
		t.Fatalf("questions = %d, want %d", len(questions), env.cfg.Verification.QuestionCount)
	}
	for _, q := range questions {
		if q.QuestionText == "" {
			t.Error("question text missing")
		}
	}
}

func TestGetChallengeBadToken(t *testing.T) {
	env := newTestEnv()

	_, err := env.verification.GetChallenge(context.Background(), "bogus")
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToken {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidToken)
	}
}

func TestGetChallengeRetiresExpiredSession(t *testing.T) {
	env := newTestEnv()
	_, _, _, token, _ := startSession(t, env)

	env.store.mu.Lock()
	for _, session := range env.store.sessions {
		session.ExpiresAt = time.Now().Add(-time.Millisecond)
	}
	env.store.mu.Unlock()

	_, err := env.verification.GetChallenge(context.Background(), token)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToken {
		t.Fatalf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidToken)
	}

	// The read itself retires the session.
	env.store.mu.Lock()
	var status domain.VerificationStatus
	for _, session := range env.store.sessions {
		status = session.Status
	}
	env.store.mu.Unlock()
	if status != domain.VerificationExpired {
		t.Errorf("status = %s, want EXPIRED", status)
	}
}

func TestSubmitAnswersPassSetsValidityWindow(t *testing.T) {
	env := newTestEnv()
	user, _, _, token, answers := startSession(t, env)

	session, err := env.verification.SubmitAnswers(context.Background(), token, answers)
	if err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	if session.Status != domain.VerificationPassed {
		t.Errorf("status = %s, want PASSED", session.Status)
	}
	if session.ValidUntil == nil {
		t.Fatal("valid_until not set on pass")
	}
	window := time.Until(*session.ValidUntil)
	want := env.cfg.Verification.ValidityWindow()
	if window <= 0 || window > want {
		t.Errorf("validity window = %v, want (0, %v]", window, want)
	}

	got, err := env.store.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.RiskScore != 0 {
		t.Errorf("risk score = %d, want 0 after a clean pass", got.RiskScore)
	}
}

func TestSubmitAnswersPartialMismatchFails(t *testing.T) {
	env := newTestEnv()
	_, _, _, token, answers := startSession(t, env)

	for id := range answers {
		answers[id] = "wrong"
		break
	}
	_, err := env.verification.SubmitAnswers(context.Background(), token, answers)
	if apperrors.CodeOf(err) != apperrors.CodeVerificationFailed {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeVerificationFailed)
	}
}

func TestSubmitAnswersTokenSingleUseAfterPass(t *testing.T) {
	env := newTestEnv()
	_, _, _, token, answers := startSession(t, env)

	if _, err := env.verification.SubmitAnswers(context.Background(), token, answers); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	_, err := env.verification.SubmitAnswers(context.Background(), token, answers)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToken {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidToken)
	}
}

func TestSubmitAnswersExhaustionLocksTicket(t *testing.T) {
	env := newTestEnv()
	user, _, ticket, token, answers := startSession(t, env)

	wrong := make(map[string]string, len(answers))
	for id := range answers {
		wrong[id] = "nope"
	}

	budget := env.cfg.Verification.AttemptBudget
	for i := 1; i < budget; i++ {
		_, err := env.verification.SubmitAnswers(context.Background(), token, wrong)
		if apperrors.CodeOf(err) != apperrors.CodeVerificationFailed {
			t.Fatalf("attempt %d: code = %s, want %s", i, apperrors.CodeOf(err), apperrors.CodeVerificationFailed)
		}
	}

	_, err := env.verification.SubmitAnswers(context.Background(), token, wrong)
	if apperrors.CodeOf(err) != apperrors.CodeAttemptsExhausted {
		t.Fatalf("final attempt: code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeAttemptsExhausted)
	}

	got, err := env.tickets.GetTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.State != domain.TicketStateLocked {
		t.Errorf("state = %s, want LOCKED", got.State)
	}

	// Burned token stops answering entirely.
	_, err = env.verification.SubmitAnswers(context.Background(), token, answers)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToken {
		t.Errorf("post-lockout: code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidToken)
	}

	subject, err := env.store.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if subject.RiskScore == 0 {
		t.Error("risk score should rise after lockout")
	}
}

func TestSubmitAnswersExpiredSession(t *testing.T) {
	env := newTestEnv()
	_, _, _, token, answers := startSession(t, env)

	env.store.mu.Lock()
	for _, session := range env.store.sessions {
		session.ExpiresAt = time.Now().Add(-time.Minute)
	}
	env.store.mu.Unlock()

	_, err := env.verification.SubmitAnswers(context.Background(), token, answers)
	if apperrors.CodeOf(err) != apperrors.CodeInvalidToken {
		t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeInvalidToken)
	}
}

func TestVerificationAttemptAudited(t *testing.T) {
	env := newTestEnv()
	_, _, ticket, token, answers := startSession(t, env)

	before := len(env.auditEntries(ticket.ID))
	if _, err := env.verification.SubmitAnswers(context.Background(), token, answers); err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	entries := env.auditEntries(ticket.ID)
	if len(entries) != before+1 {
		t.Fatalf("audit entries = %d, want %d", len(entries), before+1)
	}
	last := entries[len(entries)-1]
	if last.Action != domain.AuditActionVerificationTry || last.Result != domain.AuditSuccess {
		t.Errorf("last entry = %s/%s, want %s/SUCCESS", last.Action, last.Result, domain.AuditActionVerificationTry)
	}
}
