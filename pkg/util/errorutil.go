package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to clients.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAlreadyClaimed     = "ALREADY_CLAIMED"
	CodeNotClaimedByYou    = "NOT_CLAIMED_BY_YOU"
	CodeTicketClosed       = "TICKET_CLOSED"
	CodeInvalidToken       = "INVALID_OR_EXPIRED_TOKEN"
	CodeVerificationActive = "VERIFICATION_ALREADY_ACTIVE"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeAttemptsExhausted  = "ATTEMPTS_EXHAUSTED"
	CodeVerificationFailed = "VERIFICATION_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewAlreadyClaimed(ticketID string) error {
	return NewDomainError(CodeAlreadyClaimed, "ticket already claimed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewNotClaimedByYou(ticketID string) error {
	return NewDomainError(CodeNotClaimedByYou, "ticket is not claimed by you", http.StatusForbidden,
		map[string]any{"ticket_id": ticketID})
}

func NewTicketClosed(ticketID string) error {
	return NewDomainError(CodeTicketClosed, "ticket is closed", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewInvalidOrExpiredToken() error {
	return NewDomainError(CodeInvalidToken, "verification session invalid or expired", http.StatusGone, nil)
}

func NewVerificationAlreadyActive(ticketID string) error {
	return NewDomainError(CodeVerificationActive, "a verification is already pending for this ticket", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewAccessDenied is the single generic refusal for privileged actions.
// It carries no detail about which gate condition failed.
func NewAccessDenied() error {
	return NewDomainError(CodeAccessDenied, "access denied", http.StatusForbidden, nil)
}

func NewAttemptsExhausted() error {
	return NewDomainError(CodeAttemptsExhausted, "verification attempts exhausted; ticket locked", http.StatusForbidden, nil)
}

func NewVerificationFailed(attemptsLeft int) error {
	return NewDomainError(CodeVerificationFailed, "one or more answers did not match", http.StatusForbidden,
		map[string]any{"attempts_left": attemptsLeft})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the stable code for an error, or CodeInternal.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

func MapError(err error) error {
	return ToDomainError(err)
}
