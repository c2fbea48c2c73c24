package dto

import (
	"time"

	"github.com/spec-kit/stepup-helpdesk/internal/domain"
)

// RegisterRequest payload. Challenge questions are registered at signup
// so step-up verification can be issued later without an enrollment step.
type RegisterRequest struct {
	Name      string                     `json:"name"`
	Email     string                     `json:"email"`
	Password  string                     `json:"password"`
	Questions []ChallengeQuestionRequest `json:"questions"`
}

// ChallengeQuestionRequest describes one question/answer pair at signup.
type ChallengeQuestionRequest struct {
	Category string `json:"category"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse returns the bearer token and the authenticated identity.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the client-safe identity projection.
type UserResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Role      domain.Role       `json:"role"`
	Status    domain.UserStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
