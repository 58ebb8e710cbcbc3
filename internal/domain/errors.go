package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the reconciliation engine. Handlers map these to
// HTTP status codes; everything else is treated as an infrastructure failure.
var (
	// ErrInvalidCredentials is returned for both unknown usernames and wrong
	// passwords so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidCurrentPassword guards the password-change branch of an update.
	ErrInvalidCurrentPassword = errors.New("current password is not valid")

	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrForbidden         = errors.New("operation not permitted")
	ErrNotFound          = errors.New("account does not exist")
)

// ValidationError reports the first structural rule violated by a candidate
// account record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
