package service

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
	"github.com/spec-kit/stepup-helpdesk/internal/worker"
	apperrors "github.com/spec-kit/stepup-helpdesk/pkg/util"
)

// Full support flow: lost-access ticket, claim, step-up challenge
// delivered over chat, pass, privileged reset, close.
func TestLostAccessFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	worker.NewNotificationWorker(fakeChatRepo{env.store}, zap.NewNop()).Register(env.dispatcher)

	user, _, _, err := env.auth.RegisterUser(ctx, "Ada", "ada@example.com", "old-password", registerQuestions())
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	agent := env.addUser(domain.RoleAgent)

	ticket, err := env.tickets.CreateTicket(ctx, user, "locked out of my account")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if _, err := env.tickets.Claim(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// Reset before verification is the generic denial.
	if _, _, err := env.gate.ResetPassword(ctx, agent, ticket.ID); apperrors.CodeOf(err) != apperrors.CodeAccessDenied {
		t.Fatalf("premature reset: code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeAccessDenied)
	}

	_, token, err := env.verification.StartVerification(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("StartVerification: %v", err)
	}

	// The link reaches the subject through the ticket transcript.
	msgs, err := env.tickets.Transcript(ctx, user, ticket.ID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	linked := false
	for _, msg := range msgs {
		if msg.AuthorType == domain.AuthorTypeSystem && strings.Contains(msg.Body, "/verify/"+token) {
			linked = true
		}
	}
	if !linked {
		t.Fatal("verification link not delivered as a SYSTEM chat message")
	}

	questions, err := env.verification.GetChallenge(ctx, token)
	if err != nil {
		t.Fatalf("GetChallenge: %v", err)
	}
	answers := make(map[string]string, len(questions))
	byHash := map[string]string{
		HashAnswer("Fluffy"):   "fluffy",
		HashAnswer("Berlin"):   "berlin",
		HashAnswer("Van Gogh"): "van gogh",
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

	session, err := env.verification.SubmitAnswers(ctx, token, answers)
	if err != nil {
		t.Fatalf("SubmitAnswers: %v", err)
	}
	if session.Status != domain.VerificationPassed {
		t.Fatalf("status = %s, want PASSED", session.Status)
	}

	newPassword, _, err := env.gate.ResetPassword(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, _, _, err := env.auth.Login(ctx, "ada@example.com", newPassword); err != nil {
		t.Fatalf("login with rotated password: %v", err)
	}
	if _, _, _, err := env.auth.Login(ctx, "ada@example.com", "old-password"); err == nil {
		t.Fatal("old password still accepted after reset")
	}

	if _, err := env.tickets.Close(ctx, agent, ticket.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries := env.auditEntries(ticket.ID)
	wantActions := []string{
		domain.AuditActionTicketCreate,
		domain.AuditActionTicketClaim,
		domain.AuditActionPasswordReset, // denied before verification
		domain.AuditActionVerificationStart,
		domain.AuditActionVerificationTry,
		domain.AuditActionPasswordReset,
		domain.AuditActionTicketClose,
	}
	if len(entries) != len(wantActions) {
		t.Fatalf("audit entries = %d, want %d", len(entries), len(wantActions))
	}
	for i, entry := range entries {
		if entry.Action != wantActions[i] {
			t.Errorf("entries[%d].Action = %s, want %s", i, entry.Action, wantActions[i])
		}
	}
	if entries[2].Result != domain.AuditDenied {
		t.Errorf("premature reset result = %s, want DENIED", entries[2].Result)
	}
}
