// Package apierr provides structured error handling for the restflow SDK.
// Every failure surfaced by the execution pipeline or the SSE subsystem is
// represented as an *Error carrying a numeric code, a human-readable message
// and a coarse-grained kind used for programmatic classification.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for handling and retry decisions.
type Kind string

const (
	// KindNetwork indicates the transport was unreachable or the
	// connection was dropped mid-flight.
	KindNetwork Kind = "network"

	// KindTimeout indicates the internally scheduled per-call deadline
	// fired before the request completed.
	KindTimeout Kind = "timeout"

	// KindAbort indicates the caller cancelled the request through its
	// own cancellation handle.
	KindAbort Kind = "abort"

	// KindServer indicates the server replied with a non-2xx/3xx status.
	KindServer Kind = "server"

	// KindUnknown covers everything that could not be categorized,
	// including errors escaping from user middleware.
	KindUnknown Kind = "unknown"
)

// Error is the uniform error value returned by the execution pipeline and
// delivered to SSE error callbacks. Code is an HTTP status or an
// application-level error code extracted from the response payload.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("[%s] %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As traversal.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	dup := *e
	dup.cause = cause
	return &dup
}

// New creates an error with an explicit code, message and kind.
func New(code int, message string, kind Kind) *Error {
	return &Error{Code: code, Message: message, Kind: kind}
}

// NewNetwork creates a network-kind error wrapping cause.
func NewNetwork(cause error) *Error {
	return &Error{Code: 0, Message: "network error: " + cause.Error(), Kind: KindNetwork, cause: cause}
}

// NewTimeout creates a timeout-kind error.
func NewTimeout(cause error) *Error {
	return &Error{Code: http.StatusRequestTimeout, Message: "request timed out", Kind: KindTimeout, cause: cause}
}

// NewAbort creates an abort-kind error for caller-initiated cancellation.
func NewAbort(cause error) *Error {
	return &Error{Code: 0, Message: "request aborted", Kind: KindAbort, cause: cause}
}

// NewUnknown wraps an uncategorized error, typically one escaping from user
// middleware.
func NewUnknown(cause error) *Error {
	return &Error{Code: 0, Message: cause.Error(), Kind: KindUnknown, cause: cause}
}

// FromStatus creates a server-kind error from a bare HTTP status when the
// response payload carried no usable code/message pair.
func FromStatus(status int) *Error {
	return &Error{Code: status, Message: fmt.Sprintf("HTTP %d", status), Kind: KindServer}
}

// FromPayload builds a server-kind error from a decoded error payload,
// falling back to FromStatus when the payload has no code/message pair.
// Payloads are expected to carry {"code": <int>, "message": <string>}.
func FromPayload(status int, payload any) *Error {
	obj, ok := payload.(map[string]any)
	if !ok {
		return FromStatus(status)
	}

	e := &Error{Code: status, Message: fmt.Sprintf("HTTP %d", status), Kind: KindServer}
	found := false
	if c, ok := obj["code"]; ok {
		if f, ok := c.(float64); ok {
			e.Code = int(f)
			found = true
		}
	}
	if m, ok := obj["message"].(string); ok && m != "" {
		e.Message = m
		found = true
	}
	if !found {
		return FromStatus(status)
	}
	return e
}

// Classify converts a transport error into a kinded *Error. callerCtx is the
// caller-supplied context: when it is the trigger the outcome is an abort,
// when the internally scheduled deadline fired without the caller's context
// being done the outcome is a timeout, anything else is a network failure.
func Classify(callerCtx context.Context, err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if callerCtx != nil && callerCtx.Err() != nil {
		return NewAbort(callerCtx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout(err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAbort(err)
	}
	return NewNetwork(err)
}

// Is reports whether target is an *Error with the same kind, so callers can
// match on sentinel kinds with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && (other.Code == 0 || other.Code == e.Code)
}
