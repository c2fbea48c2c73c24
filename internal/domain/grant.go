package domain

import "time"

// GrantAction enumerates the privileged actions a grant can authorize.
type GrantAction string

const (
	GrantActionPasswordReset GrantAction = "PASSWORD_RESET"
)

// PrivilegedGrant records a single-use authorization minted from a
// PASSED verification session. Grants are consumed at creation; a second
// privileged action requires a new session.
type PrivilegedGrant struct {
	ID        string
	TicketID  string
	SessionID string
	Action    GrantAction
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
}
