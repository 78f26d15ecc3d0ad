// Package errors provides the engine error taxonomy on top of wrapped
// standard errors. Every failure surfaced by the dispatch pipeline carries a
// Kind that decides whether the work is retried, dead-lettered, or resolved
// as a terminal order state.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Kind classifies a failure for retry and notification policy.
type Kind string

const (
	// KindTransient covers broker timeouts and transient network failures.
	// Retried with bounded exponential backoff via nack.
	KindTransient Kind = "transient"
	// KindBusinessRejection covers broker-reported invalid orders. Terminal,
	// surfaced as REJECTED, never retried.
	KindBusinessRejection Kind = "business_rejection"
	// KindRiskViolation covers risk gate denials, terminal before broker
	// contact.
	KindRiskViolation Kind = "risk_violation"
	// KindExhausted marks work that exceeded its max attempt count.
	KindExhausted Kind = "exhausted"
	// KindFatal covers unexpected failures that force an order to ERROR.
	KindFatal Kind = "fatal"
	// KindUnknown is the zero classification.
	KindUnknown Kind = "unknown"
)

// Error is the engine error type carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	trace []byte
	cause error
}

var _ error = (*Error)(nil)

// New creates an unclassified error with the given message.
func New(message string) *Error {
	return &Error{Kind: KindUnknown, Message: message}
}

// NewWithKind creates an empty error of the given kind.
func NewWithKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, cause: err}
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error { return Wrap(KindTransient, err) }

// Business wraps err as a terminal broker rejection.
func Business(err error) *Error { return Wrap(KindBusinessRejection, err) }

// Fatal wraps err as an unrecoverable failure.
func Fatal(err error) *Error { return Wrap(KindFatal, err) }

// Error implements error.
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	if len(e.trace) > 0 {
		str += fmt.Sprintf("\n\nTrace: %s", string(e.trace))
	}
	return str
}

// Explain returns a copy of the error with the given message.
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// Trace attaches the current stack to the error.
func (e *Error) Trace() *Error {
	stack := make([]byte, 2048)
	n := runtime.Stack(stack, false)
	e.trace = stack[:n]
	return e
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches two engine errors by kind so callers can test policy with
// errors.Is(err, errors.NewWithKind(KindTransient)).
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// KindOf extracts the Kind from any error chain, KindUnknown when absent.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTransient reports whether the error chain carries a transient
// classification.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
