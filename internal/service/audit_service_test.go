package service

import (
	"strings"
	"testing"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

func TestTicketViewsPseudonymizeParticipants(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(domain.RoleEndUser)
	agent := env.addUser(domain.RoleAgent)
	ticket := env.claimedTicket(user, agent)

	views := env.audit.TicketViews([]domain.Ticket{*ticket})
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	view := views[0]
	if view.UserHash != env.audit.ActorHash(domain.RoleEndUser, user.ID) {
		t.Error("user hash must come from the keyed pseudonym mapping")
	}
	if strings.Contains(view.UserHash, user.ID) {
		t.Error("raw subject id leaks into the roll-up")
	}
	if view.ClaimedByHash == nil {
		t.Fatal("claimed ticket must carry a claimant hash")
	}
	if *view.ClaimedByHash != env.audit.ActorHash(domain.RoleAgent, agent.ID) {
		t.Error("claimant hash must come from the keyed pseudonym mapping")
	}
	if strings.Contains(*view.ClaimedByHash, agent.ID) {
		t.Error("raw agent id leaks into the roll-up")
	}
}

func TestTicketViewsUnclaimedTicket(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(domain.RoleEndUser)
	ticket := env.addTicket(user)

	views := env.audit.TicketViews([]domain.Ticket{*ticket})
	if views[0].ClaimedByHash != nil {
		t.Error("unclaimed ticket must not carry a claimant hash")
	}
}

func TestTranscriptViewHidesAuthorIDs(t *testing.T) {
	env := newTestEnv()
	user := env.addUser(domain.RoleEndUser)
	agent := env.addUser(domain.RoleAgent)

	messages := []domain.ChatMessage{
		{AuthorType: domain.AuthorTypeUser, AuthorID: &user.ID, Body: "I lost my password"},
		{AuthorType: domain.AuthorTypeAgent, AuthorID: &agent.ID, Body: "Starting verification"},
		{AuthorType: domain.AuthorTypeSystem, Body: "Ticket closed"},
	}
	views := env.audit.TranscriptView(messages)
	if len(views) != 3 {
		t.Fatalf("views = %d, want 3", len(views))
	}

	if views[0].AuthorHash == nil || *views[0].AuthorHash != env.audit.ActorHash(domain.RoleEndUser, user.ID) {
		t.Error("user message must be labeled with the subject's pseudonymous hash")
	}
	if views[1].AuthorHash == nil || *views[1].AuthorHash != env.audit.ActorHash(domain.RoleAgent, agent.ID) {
		t.Error("agent message must be labeled with the agent's pseudonymous hash")
	}
	if views[2].AuthorHash != nil {
		t.Error("system message has no author to label")
	}
	for i, view := range views {
		if view.AuthorHash != nil && (strings.Contains(*view.AuthorHash, user.ID) || strings.Contains(*view.AuthorHash, agent.ID)) {
			t.Errorf("message %d: raw author id leaks into the transcript view", i)
		}
	}
}
