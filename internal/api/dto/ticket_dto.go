package dto

import (
	"time"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject string `json:"subject"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string             `json:"id"`
	ExternalKey string             `json:"external_key"`
	UserID      string             `json:"user_id"`
	Subject     string             `json:"subject"`
	State       domain.TicketState `json:"state"`
	ClaimedBy   *string            `json:"claimed_by"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ClosedAt    *time.Time         `json:"closed_at,omitempty"`
}

// TicketDetailResponse carries the ticket with its transcript.
type TicketDetailResponse struct {
	TicketSummary
	Messages []ChatMessageResponse `json:"messages"`
}

// ChatMessageResponse represents one transcript entry.
type ChatMessageResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id,omitempty"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}
