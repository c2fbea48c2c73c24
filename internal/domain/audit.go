package domain

import "time"

// AuditResult enumerates decision outcomes recorded in the audit trail.
type AuditResult string

const (
	AuditSuccess AuditResult = "SUCCESS"
	AuditDenied  AuditResult = "DENIED"
	AuditFailed  AuditResult = "FAILED"
)

// Audit action names. Every state transition and every verification or
// grant decision writes exactly one entry under one of these.
const (
	AuditActionLogin             = "login"
	AuditActionTicketCreate      = "ticket_create"
	AuditActionTicketClaim       = "ticket_claim"
	AuditActionTicketClose       = "ticket_close"
	AuditActionTicketLock        = "ticket_lock"
	AuditActionVerificationStart = "verification_start"
	AuditActionVerificationTry   = "verification_attempt"
	AuditActionPasswordReset     = "password_reset"
)

// AuditLogEntry is an append-only security event. Seq is the insertion
// sequence and is authoritative for ordering; Timestamp is advisory.
// ActorHash is the pseudonymous stand-in for the actor; raw identity is
// never stored here.
type AuditLogEntry struct {
	ID        string
	Seq       int64
	Timestamp time.Time
	ActorRole Role
	ActorHash string
	Action    string
	TicketID  *string
	Result    AuditResult
	Context   string
}
