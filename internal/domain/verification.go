package domain

import "time"

// VerificationStatus enumerates the states of a step-up session.
type VerificationStatus string

const (
	VerificationPending VerificationStatus = "PENDING"
	VerificationPassed  VerificationStatus = "PASSED"
	VerificationFailed  VerificationStatus = "FAILED"
	VerificationExpired VerificationStatus = "EXPIRED"
)

// ChallengeQuestion is a pre-registered knowledge question for a user.
// The expected answer is stored only as a hash of its normalized form.
type ChallengeQuestion struct {
	ID           string
	UserID       string
	Category     string
	QuestionText string
	AnswerHash   string
	CreatedAt    time.Time
}

// SessionQuestion is the snapshot of a challenge question frozen into a
// verification session at issue time.
type SessionQuestion struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	AnswerHash   string `json:"answer_hash"`
}

// VerificationSession is a time-boxed identity challenge tied to one
// ticket and its owning user. The bearer token is stored only as a hash;
// the plaintext token is returned exactly once at creation.
type VerificationSession struct {
	ID            string
	TicketID      string
	SubjectUserID string
	AgentID       string
	TokenHash     string
	Status        VerificationStatus
	Questions     []SessionQuestion
	AttemptsLeft  int
	IssuedAt      time.Time
	ExpiresAt     time.Time
	// ValidUntil bounds privileged actions after a PASS. Distinct from
	// ExpiresAt, which bounds answering.
	ValidUntil *time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the answering window has elapsed at now.
func (s *VerificationSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Fresh reports whether a PASSED session still authorizes privileged
// actions at now.
func (s *VerificationSession) Fresh(now time.Time) bool {
	return s.Status == VerificationPassed && s.ValidUntil != nil && !now.After(*s.ValidUntil)
}
