package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient indicates a temporary provider failure (timeout, 5xx).
	// Safe to retry on the next tick; the thread stays pending.
	ErrTransient = errors.New("transient provider failure")

	// ErrAuthExpired indicates the tenant's mailbox credential is expired or
	// revoked. Terminal for the tenant for the current tick, never global.
	ErrAuthExpired = errors.New("mailbox authorization expired")

	// ErrQuotaExceeded indicates the generation quota guard denied the call.
	// Terminal for the message to avoid hot retry loops on a shared budget.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrGenerationFailed indicates the generation service returned an error.
	ErrGenerationFailed = errors.New("reply generation failed")

	// ErrMalformedResponse indicates the generation service returned empty or
	// unparseable content. Treated as a generation failure.
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrParseFailure indicates date/time extraction could not produce an
	// absolute instant. Never fatal to the reply flow.
	ErrParseFailure = errors.New("date parse failure")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")
)

// Error codes for API responses
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeTransient        = "TRANSIENT_FAILURE"
	CodeAuthExpired      = "AUTH_EXPIRED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient checks if the error is safe to retry on a later tick
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsAuthExpired checks if the error means the tenant needs re-authentication
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsQuotaExceeded checks if the error is a quota guard denial
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsGenerationFailure checks if the error is terminal for the message:
// a generation error, malformed content, or a quota denial.
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrGenerationFailed) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrQuotaExceeded)
}

// IsParseFailure checks if the error is a date/time parse failure
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParseFailure)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case IsQuotaExceeded(err):
		return CodeQuotaExceeded
	case IsAuthExpired(err):
		return CodeAuthExpired
	case errors.Is(err, ErrGenerationFailed), errors.Is(err, ErrMalformedResponse):
		return CodeGenerationFailed
	case IsTransient(err):
		return CodeTransient
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternalError
	}
}
