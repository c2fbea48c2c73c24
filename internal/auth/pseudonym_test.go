package auth

import (
	"testing"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

func TestPseudonymizerStable(t *testing.T) {
	p := NewPseudonymizer("secret")
	first := p.Hash(domain.RoleAgent, "agent-1")
	second := p.Hash(domain.RoleAgent, "agent-1")
	if first != second {
		t.Error("same actor must map to the same hash")
	}
	if first == "agent-1" {
		t.Error("hash must not expose the raw identifier")
	}
}

func TestPseudonymizerDistinguishesActors(t *testing.T) {
	p := NewPseudonymizer("secret")
	if p.Hash(domain.RoleAgent, "agent-1") == p.Hash(domain.RoleAgent, "agent-2") {
		t.Error("different actors must map to different hashes")
	}
	if p.Hash(domain.RoleAgent, "x") == p.Hash(domain.RoleEndUser, "x") {
		t.Error("role must be part of the mapping")
	}
}

func TestPseudonymizerKeyed(t *testing.T) {
	a := NewPseudonymizer("secret-a")
	b := NewPseudonymizer("secret-b")
	if a.Hash(domain.RoleAgent, "agent-1") == b.Hash(domain.RoleAgent, "agent-1") {
		t.Error("hash must depend on the secret")
	}
}
