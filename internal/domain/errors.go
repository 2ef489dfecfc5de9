package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a username or email is already taken
	ErrConflict = errors.New("username or email already exists")
	// ErrInvalidCredentials covers both an unknown username and a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a session is missing, invalid or expired
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports bad or missing input
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with a formatted message
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failure of an external collaborator (estimator, store)
type UpstreamError struct {
	Op    string // Which collaborator failed
	Cause error  // Underlying failure
}

func (e *UpstreamError) Error() string {
	if e.Cause == nil {
		return e.Op + " failed"
	}
	return e.Op + ": " + e.Cause.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUpstream reports whether err is or wraps an UpstreamError
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}
