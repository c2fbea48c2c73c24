package dto

import (
	"time"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// AuditEntryResponse is one trail entry. Actors appear only as
// pseudonymous hashes.
type AuditEntryResponse struct {
	Seq       int64              `json:"seq"`
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	ActorRole domain.Role        `json:"actor_role"`
	ActorHash string             `json:"actor_hash"`
	Action    string             `json:"action"`
	TicketID  *string            `json:"ticket_id,omitempty"`
	Result    domain.AuditResult `json:"result"`
	Context   string             `json:"context,omitempty"`
}

// AuditTicketSummary is one roll-up row for the auditor. Participants
// appear only as pseudonymous hashes.
type AuditTicketSummary struct {
	ID            string             `json:"id"`
	ExternalKey   string             `json:"external_key"`
	Subject       string             `json:"subject"`
	State         domain.TicketState `json:"state"`
	UserHash      string             `json:"user_hash"`
	ClaimedByHash *string            `json:"claimed_by_hash,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ClosedAt      *time.Time         `json:"closed_at,omitempty"`
}

// AuditChatMessage is one transcript entry for the auditor, with the
// author labeled by hash rather than id.
type AuditChatMessage struct {
	ID         string                   `json:"id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorHash *string                  `json:"author_hash,omitempty"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// TicketAuditResponse bundles a ticket's transcript with its trail for
// the auditor review surface.
type TicketAuditResponse struct {
	TicketID string               `json:"ticket_id"`
	Messages []AuditChatMessage   `json:"messages"`
	Entries  []AuditEntryResponse `json:"entries"`
}
