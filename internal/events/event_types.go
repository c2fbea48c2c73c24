package events

import (
	"time"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventTicketClaimed        EventType = "ticket_claimed"
	EventTicketClosed         EventType = "ticket_closed"
	EventTicketLocked         EventType = "ticket_locked"
	EventVerificationStarted  EventType = "verification_started"
	EventVerificationPassed   EventType = "verification_passed"
	EventVerificationFailed   EventType = "verification_failed"
	EventPasswordResetGranted EventType = "password_reset_granted"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role   domain.Role `json:"role"`
	UserID string      `json:"user_id"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// VerificationStartedPayload carries what the delivery worker needs to
// hand the challenge link to the subject.
type VerificationStartedPayload struct {
	SessionID     string    `json:"session_id"`
	SubjectUserID string    `json:"subject_user_id"`
	VerifyURL     string    `json:"verify_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// VerificationOutcomePayload payload.
type VerificationOutcomePayload struct {
	SessionID    string `json:"session_id"`
	AttemptsLeft int    `json:"attempts_left"`
	Locked       bool   `json:"locked,omitempty"`
}

// TicketStateChangedPayload payload.
type TicketStateChangedPayload struct {
	OldState domain.TicketState `json:"old_state"`
	NewState domain.TicketState `json:"new_state"`
}

// PasswordResetGrantedPayload payload.
type PasswordResetGrantedPayload struct {
	GrantID   string `json:"grant_id"`
	SessionID string `json:"session_id"`
}
