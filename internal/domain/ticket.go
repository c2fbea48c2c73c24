package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen    TicketState = "OPEN"
	TicketStateClaimed TicketState = "CLAIMED"
	TicketStateClosed  TicketState = "CLOSED"
	TicketStateLocked  TicketState = "LOCKED"
)

// Ticket is the aggregate for support requests. UserID is immutable after
// creation; State and ClaimedBy change only through the state machine.
type Ticket struct {
	ID          string
	ExternalKey string
	UserID      string
	Subject     string
	State       TicketState
	ClaimedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
}

var allowedTransitions = map[TicketState][]TicketState{
	TicketStateOpen:    {TicketStateClaimed, TicketStateClosed},
	TicketStateClaimed: {TicketStateClosed, TicketStateLocked},
	TicketStateLocked:  {TicketStateClosed},
	TicketStateClosed:  {},
}

// CanTransition reports whether the state machine permits moving from
// current to next.
func CanTransition(current, next TicketState) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further claim or privileged action is
// possible. LOCKED tickets may still be closed and still accept chat.
func (t TicketState) IsTerminal() bool {
	return t == TicketStateClosed
}
