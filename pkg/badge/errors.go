package badge

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers. Verification failures are never errors;
// they are reported as a VerifyResult with an Outcome.
const (
	// ErrCodeNoAnchors indicates issuance was requested for a subject with no anchors.
	ErrCodeNoAnchors = "NO_ANCHORS"

	// ErrCodeInvalidInput indicates malformed caller input.
	ErrCodeInvalidInput = "INVALID_INPUT"

	// ErrCodeNotFound indicates the store holds no badge for a token.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeDuplicateToken indicates a store already holds a badge with the token.
	ErrCodeDuplicateToken = "DUPLICATE_TOKEN"

	// ErrCodeUnavailable indicates the store could not answer within its deadline.
	ErrCodeUnavailable = "STORE_UNAVAILABLE"

	// ErrCodeForbidden indicates the caller may not act on the badge.
	ErrCodeForbidden = "FORBIDDEN"
)

// Error is a badge error with a machine-readable code.
type Error struct {
	// Code is one of the ErrCode* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new Error that wraps an underlying error.
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Predefined sentinel errors for common cases.
// Use these with errors.Is() for type-safe error checking.
var (
	// ErrNoAnchors is returned when issuing for a subject with zero anchors.
	ErrNoAnchors = NewError(ErrCodeNoAnchors, "subject has no identity anchors")

	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = NewError(ErrCodeInvalidInput, "invalid input")

	// ErrInvalidSubject is returned when the subject id is blank.
	ErrInvalidSubject = NewError(ErrCodeInvalidInput, "subject id is required")

	// ErrNotFound is returned by stores when no badge has the token.
	ErrNotFound = NewError(ErrCodeNotFound, "badge not found")

	// ErrDuplicateToken is returned by stores when a token is already taken.
	ErrDuplicateToken = NewError(ErrCodeDuplicateToken, "badge token already exists")

	// ErrUnavailable is returned when the store failed or timed out.
	ErrUnavailable = NewError(ErrCodeUnavailable, "badge store unavailable")

	// ErrForbidden is returned when the caller is neither the subject nor an administrator.
	ErrForbidden = NewError(ErrCodeForbidden, "caller is not authorized for this badge")
)

// AsError checks if err is an Error and returns it if so.
func AsError(err error) (*Error, bool) {
	var badgeErr *Error
	if errors.As(err, &badgeErr) {
		return badgeErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an Error, or returns empty string.
func GetErrorCode(err error) string {
	if badgeErr, ok := AsError(err); ok {
		return badgeErr.Code
	}
	return ""
}

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeNoAnchors, ErrCodeInvalidInput:
		return true
	}
	return false
}
