// Package domain defines the core domain models for tokenkeeper.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is a business error carrying a stable code.
//
// Two DomainErrors match under errors.Is when their codes are equal, so
// callers compare against the sentinels below regardless of details or
// wrapped causes.
type DomainError struct {
	Code    string // e.g. "TK-TOKN-4040"
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Token Errors (TOKN)
// ============================================================================

var (
	// ErrTokenNotFound indicates no record exists for the presented secret.
	ErrTokenNotFound = NewDomainError("TK-TOKN-4040", "token not found")

	// ErrTokenExpired indicates the token's expiry has passed.
	ErrTokenExpired = NewDomainError("TK-TOKN-4011", "token expired")

	// ErrTokenRevoked indicates the token has been revoked.
	ErrTokenRevoked = NewDomainError("TK-TOKN-4012", "token revoked")

	// ErrDuplicateSecret indicates the secret hash is already stored.
	// Issue recovers from it by regenerating; it is not surfaced to callers.
	ErrDuplicateSecret = NewDomainError("TK-TOKN-4090", "duplicate secret")

	// ErrIssuanceFailed indicates no unique secret could be stored.
	ErrIssuanceFailed = NewDomainError("TK-TOKN-5001", "token issuance failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternal indicates an unexpected failure, e.g. the CSPRNG failed.
	ErrInternal = NewDomainError("TK-SYS-5000", "internal error")

	// ErrStoreUnavailable indicates the backing store could not serve the call.
	ErrStoreUnavailable = NewDomainError("TK-SYS-5030", "token store unavailable")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("TK-ARG-1001", "invalid argument")
)
