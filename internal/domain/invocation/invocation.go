// Package invocation defines the outbound agent call payload and its
// failure classification.
package invocation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an invocation failure.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindUnavailable  Kind = "unavailable"
	KindValidation   Kind = "validation"
	KindBusinessRule Kind = "business_rule"
	KindUnknown      Kind = "unknown"
)

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindUnavailable
}

var (
	// ErrTransient matches failures that may succeed on retry.
	ErrTransient = errors.New("transient invocation failure")
	// ErrNonRetryable matches application-level rejections.
	ErrNonRetryable = errors.New("non-retryable invocation failure")
)

// Error is a classified invocation failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes the cause together with the retry class sentinel.
func (e *Error) Unwrap() []error {
	class := ErrNonRetryable
	if e.Kind.Retryable() {
		class = ErrTransient
	}
	if e.Err != nil {
		return []error{class, e.Err}
	}
	return []error{class}
}

// Transient builds a retryable failure.
func Transient(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Rejected builds a non-retryable failure from an agent reply.
func Rejected(kind Kind, message string) *Error {
	if kind == "" {
		kind = KindUnknown
	}
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the failure kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Payload is the body sent to an agent endpoint.
type Payload struct {
	Capability    string         `json:"capability"`
	CorrelationID string         `json:"correlation_id"`
	RequestID     string         `json:"request_id"`
	Arguments     map[string]any `json:"arguments"`
}

// ErrorBody is the failure reply shape agents use.
type ErrorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Result is the outcome of one resilient invocation.
type Result struct {
	Response json.RawMessage
	Err      error
	Attempts int
}
