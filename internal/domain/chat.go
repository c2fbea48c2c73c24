package domain

import "time"

// MessageAuthorType indicates who authored a chat message.
type MessageAuthorType string

const (
	AuthorTypeUser   MessageAuthorType = "USER"
	AuthorTypeAgent  MessageAuthorType = "AGENT"
	AuthorTypeSystem MessageAuthorType = "SYSTEM"
)

// ChatMessage is one entry in a ticket's append-only transcript. Writes
// are rejected once the ticket is CLOSED.
type ChatMessage struct {
	ID         string
	TicketID   string
	AuthorType MessageAuthorType
	AuthorID   *string
	Body       string
	CreatedAt  time.Time
}
