// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values that wrap one of the sentinel errors below.
// Callers classify them with errors.Is, and the HTTP layer decides how each
// class is presented (a JSON status code, or a redirect carrying Message).
//
// ERROR CLASSES:
//   - ErrValidation   → the caller asked for something the rules forbid
//   - ErrNotFound     → a referenced record (or pending request) does not exist
//   - ErrIO           → the image backend or mailer failed; Message is generic
//   - ErrUnauthorized → no valid session (the "AuthError" of the sharing flow)
//   - ErrForbidden    → authenticated, but not allowed to touch the resource
//   - ErrConflict     → a uniqueness rule was violated
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrIO           = errors.New("io error")
)

type AppError struct {
	Err     error  // sentinel class
	Message string // Human-readable error message, safe to show to users
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, logged but never displayed
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the class and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen message, used where the
// missing thing has no id of its own (a pending request, a notification).
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports a missing or invalid session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// IO wraps a backend failure behind a generic message. The cause is kept
// for logs; Message is what the user sees.
func IO(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrIO,
		Message: message,
		Cause:   cause,
	}
}

// Message returns the user-facing message of err if it carries one,
// otherwise fallback.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
