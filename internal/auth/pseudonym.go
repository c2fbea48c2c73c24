package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// Pseudonymizer maps an actor identity to the log-safe token stored in
// audit entries. The mapping is deterministic per actor and one-way
// without the key; raw identities never reach the audit log.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer builds a pseudonymizer keyed with the given secret.
func NewPseudonymizer(secret string) *Pseudonymizer {
	return &Pseudonymizer{key: []byte(secret)}
}

// Hash returns the pseudonymous hash for the actor.
func (p *Pseudonymizer) Hash(role domain.Role, userID string) string {
	mac := hmac.New(sha256.New, p.key)
	mac.Write([]byte(string(role)))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}
