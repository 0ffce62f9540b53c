package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. Handlers map them to status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrMissingRecipients = errors.New("no valid recipients found")

	// ErrAuthExpired means the mailbox provider rejected the access token.
	ErrAuthExpired = errors.New("authorization expired")
	// ErrTransport is a per-recipient delivery failure.
	ErrTransport = errors.New("transport error")
	// ErrConnection is an SMTP verify failure before any send.
	ErrConnection = errors.New("connection failed")
)

// ReconnectGmailMessage is recorded for recipients whose refresh or retry failed.
const ReconnectGmailMessage = "Gmail authorization expired. Please reconnect your Gmail account."

// ValidationError reports bad input detected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a *ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// NotFoundError names the missing entity while matching ErrNotFound.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound returns an error matching ErrNotFound with a descriptive message.
func NotFound(what string) error { return &NotFoundError{What: what} }

// ConnectionError wraps an SMTP verify failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "SMTP connection failed: " + e.Err.Error() }

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }
