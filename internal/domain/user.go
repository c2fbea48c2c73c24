package domain

import "time"

// Role enumerates the capability classes a caller may hold.
type Role string

const (
	RoleEndUser Role = "END_USER"
	RoleAgent   Role = "AGENT"
	RoleAuditor Role = "AUDITOR"
)

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the domain model for every actor in the system. Accounts are
// never deleted, only suspended.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	// RiskScore is mutated only by the verification engine on challenge
	// outcomes.
	RiskScore int
	Status    UserStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
