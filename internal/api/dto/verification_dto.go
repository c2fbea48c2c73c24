package dto

import "time"

// StartVerificationResponse confirms session issue to the agent. The
// bearer token is never part of this response; delivery goes through the
// ticket chat to the subject only.
type StartVerificationResponse struct {
	SessionID    string    `json:"session_id"`
	AttemptsLeft int       `json:"attempts_left"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ChallengeQuestionView is one question shown to the subject.
type ChallengeQuestionView struct {
	ID           string `json:"id"`
	QuestionText string `json:"question_text"`
}

// ChallengeResponse is the GET /verify/:token body.
type ChallengeResponse struct {
	Questions []ChallengeQuestionView `json:"questions"`
}

// SubmitAnswersRequest maps question IDs to the subject's answers.
type SubmitAnswersRequest struct {
	Answers map[string]string `json:"answers"`
}

// VerificationResultResponse is returned on a PASS.
type VerificationResultResponse struct {
	Status     string    `json:"status"`
	ValidUntil time.Time `json:"valid_until"`
}

// ResetPasswordResponse returns the one-time artifact for the agent to
// relay. The value is not retrievable again.
type ResetPasswordResponse struct {
	GrantID     string    `json:"grant_id"`
	NewPassword string    `json:"new_password"`
	IssuedAt    time.Time `json:"issued_at"`
}
