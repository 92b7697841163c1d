package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey indicates a uniqueness constraint would be violated.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrPolicyViolation indicates an operation is blocked by a protection rule.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// PolicyReason classifies why a policy guard rejected an operation.
type PolicyReason string

const (
	// PolicyPreset protects built-in roles from deletion or downgrade.
	PolicyPreset PolicyReason = "PRESET"
	// PolicyInUse blocks deleting a role while users still hold it.
	PolicyInUse PolicyReason = "IN_USE"
)

// PolicyError carries the reason a protection rule fired.
type PolicyError struct {
	Reason  PolicyReason
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Reason, e.Message)
}

// Unwrap makes PolicyError match ErrPolicyViolation under errors.Is.
func (e *PolicyError) Unwrap() error {
	return ErrPolicyViolation
}

// Policy builds a PolicyError.
func Policy(reason PolicyReason, message string) error {
	return &PolicyError{Reason: reason, Message: message}
}
