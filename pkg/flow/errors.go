package flow

import (
	"errors"
	"time"
)

// ErrorKind classifies a primitive failure for recovery decisions.
type ErrorKind string

const (
	// KindTransient marks failures that are safe to retry.
	KindTransient ErrorKind = "transient"
	// KindPermanent marks failures where retrying is pointless, such as
	// validation errors or a router with no matching route.
	KindPermanent ErrorKind = "permanent"
	// KindTimeout marks deadline expiry raised by the Timeout primitive.
	KindTimeout ErrorKind = "timeout"
	// KindCircuitOpen marks fast-fail rejections from an open circuit
	// breaker; the wrapped primitive was never invoked.
	KindCircuitOpen ErrorKind = "circuit_open"
)

// ErrCircuitOpen is the cause carried by circuit breaker rejections, so
// callers can match them with errors.Is as well as by kind.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Error is the typed failure primitives signal. Recovery primitives act
// only on the kinds they document and pass every other error through
// unchanged, so a plain error from a step function survives all the way to
// the outermost caller.
type Error struct {
	Kind  ErrorKind
	Cause error

	// RetryAfter hints when a retry might succeed. Zero means no hint.
	// Set by circuit breaker rejections to the remaining recovery time.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// TransientError wraps cause as a retryable failure.
func TransientError(cause error) *Error {
	return &Error{Kind: KindTransient, Cause: cause}
}

// PermanentError wraps cause as a failure not worth retrying.
func PermanentError(cause error) *Error {
	return &Error{Kind: KindPermanent, Cause: cause}
}

// TimeoutError wraps cause as a deadline failure.
func TimeoutError(cause error) *Error {
	return &Error{Kind: KindTimeout, Cause: cause}
}

// CircuitOpenError builds the rejection returned while a breaker is open.
func CircuitOpenError(retryAfter time.Duration) *Error {
	return &Error{Kind: KindCircuitOpen, Cause: ErrCircuitOpen, RetryAfter: retryAfter}
}

// Classify returns the kind carried by err. ok is false for errors without
// a typed kind, such as plain errors returned by step functions.
func Classify(err error) (ErrorKind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func kindIs(err error, kind ErrorKind) bool {
	k, ok := Classify(err)
	return ok && k == kind
}

// IsTransient reports whether err is classified as safe to retry.
func IsTransient(err error) bool { return kindIs(err, KindTransient) }

// IsPermanent reports whether err is classified as not worth retrying.
func IsPermanent(err error) bool { return kindIs(err, KindPermanent) }

// IsTimeout reports whether err came from an expired Timeout primitive.
func IsTimeout(err error) bool { return kindIs(err, KindTimeout) }

// IsCircuitOpen reports whether err is an open-breaker rejection.
func IsCircuitOpen(err error) bool { return kindIs(err, KindCircuitOpen) }

// RetryAfterHint returns the retry-after hint carried by err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.RetryAfter > 0 {
		return fe.RetryAfter, true
	}
	return 0, false
}
