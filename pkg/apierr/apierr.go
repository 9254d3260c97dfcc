// Package apierr defines the tagged error type shared by the resiliency
// components. Status code and error kind are assigned where the error is
// constructed, so retry policies never have to probe arbitrary error
// values for status-shaped fields.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and observability decisions.
type Kind string

const (
	// KindNetwork represents connection-level failures (DNS, refused, reset).
	KindNetwork Kind = "network"

	// KindTimeout represents deadline or timeout failures.
	KindTimeout Kind = "timeout"

	// KindClient represents 4xx client errors.
	KindClient Kind = "client"

	// KindServer represents 5xx server errors.
	KindServer Kind = "server"

	// KindRateLimit represents 429 responses from the remote service.
	KindRateLimit Kind = "rate_limit"
)

// Error is an error with an explicit kind and optional HTTP-like status.
// A zero Status means the error did not originate from an HTTP response.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// New creates an Error with an explicit kind and status.
func New(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}

// FromStatus creates an Error whose kind is derived from the HTTP status code.
func FromStatus(status int, message string) *Error {
	return &Error{Kind: kindForStatus(status), Status: status, Message: message}
}

func kindForStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimit
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500:
		return KindServer
	default:
		return KindNetwork
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status > 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (status %d): %s: %v", e.Kind, e.Status, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two Errors by kind, so errors.Is(err, &Error{Kind: KindServer})
// checks the classification without comparing the rest of the fields.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// StatusOf extracts the HTTP status from err if it carries one.
// Returns 0 and false for errors without a status tag.
func StatusOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Status > 0 {
		return e.Status, true
	}
	return 0, false
}

// KindOf extracts the kind from err if it is a tagged Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
