package types

import "errors"

// ValidationError reports input the caller supplied malformed or missing.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "Unprocessable Entity"
	}
	return e.Message
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	if e.Message == "" {
		return "Not Found"
	}
	return e.Message
}

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

func NewNotFoundError(message string) error {
	return &NotFoundError{Message: message}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFoundError reports whether err wraps a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

var (
	ErrSessionNameRequired = NewValidationError("Session name is required")
	ErrUserNameRequired    = NewValidationError("User name is required")
	ErrSessionRequired     = NewValidationError("Session is required")
	ErrEventRequired       = NewValidationError("Activity event is required")
	ErrInvalidOrder        = NewValidationError("User order must be a positive integer")
	ErrUserRequired        = NewValidationError("User is required")

	ErrSessionNotFound = NewNotFoundError("Session does not exist")
	ErrUserNotFound    = NewNotFoundError("User does not exist")
)
