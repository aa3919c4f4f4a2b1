// Package fault defines the error taxonomy shared by the query store and the
// mutation executor.
//
// Fetch and effect failures are captured into entries and runs as *Error
// values; they are data, not panics. Nothing in this taxonomy is fatal to
// the process: every failure is scoped to one key or one mutation run.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindNetwork is a transport or connectivity failure.
	KindNetwork Kind = "network"

	// KindServer is a non-2xx response carrying a status and message.
	KindServer Kind = "server"

	// KindValidation is malformed caller input rejected before any effect ran.
	KindValidation Kind = "validation"

	// KindTimeout is a caller-supplied deadline that elapsed.
	KindTimeout Kind = "timeout"

	// KindCanceled is a caller or store shutdown cancellation.
	KindCanceled Kind = "canceled"

	// KindInternal is anything that does not fit the kinds above.
	KindInternal Kind = "internal"
)

// Error is the typed failure surfaced through entries and runs.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description. For server errors it is the
	// message field of the response body when present.
	Message string

	// Status is the HTTP status for server errors, 0 otherwise.
	Status int

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation creates a validation error from a format string.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Server creates a server error for an HTTP status.
func Server(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

// StatusCarrier is implemented by transport errors that know the HTTP
// status and message of a failed response.
type StatusCarrier interface {
	error
	HTTPStatus() int
	ServerMessage() string
}

// Classify maps an arbitrary error onto the taxonomy. Errors that already
// are *Error (anywhere in the chain) are returned as is. Returns nil for nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, "deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindCanceled, "canceled", err)
	}

	var sc StatusCarrier
	if errors.As(err, &sc) {
		return &Error{Kind: KindServer, Status: sc.HTTPStatus(), Message: sc.ServerMessage(), Cause: err}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return Wrap(KindTimeout, ne.Error(), err)
		}
		return Wrap(KindNetwork, ne.Error(), err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return Wrap(KindNetwork, ue.Error(), err)
	}

	return Wrap(KindInternal, err.Error(), err)
}

// KindOf returns the kind of err after classification, or "" for nil.
func KindOf(err error) Kind {
	if fe := Classify(err); fe != nil {
		return fe.Kind
	}
	return ""
}

// IsValidation returns true if err classifies as a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsServer returns true if err classifies as a server error.
func IsServer(err error) bool { return KindOf(err) == KindServer }

// IsNetwork returns true if err classifies as a network error.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsTimeout returns true if err classifies as a timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// Retryable reports whether a fetch that failed with err may succeed if
// attempted again: network failures, timeouts and 5xx responses.
func Retryable(err error) bool {
	fe := Classify(err)
	if fe == nil {
		return false
	}
	switch fe.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindServer:
		return fe.Status >= 500
	default:
		return false
	}
}
