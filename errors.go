// Package lwt error taxonomy: system-call failures, cooperative
// cancellation, descriptor closure, resource exhaustion and protocol
// violations, each matchable via [errors.Is] / [errors.As].
package lwt

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrCancelled is the sentinel a [CancelledError] wraps; matched with
// errors.Is(err, lwt.ErrCancelled).
var ErrCancelled = errors.New("lwt: blocking reference cancelled")

// ErrClosed is the sentinel a [ClosedError] wraps.
var ErrClosed = errors.New("lwt: descriptor closed")

// SystemCallError wraps a failing OS call. The errno is captured at the
// point of failure so it survives any number of fiber suspensions before
// the caller observes it.
type SystemCallError struct {
	Call string
	Errno syscall.Errno
}

func (e *SystemCallError) Error() string {
	if e.Call == "" {
		return e.Errno.Error()
	}
	return fmt.Sprintf("lwt: %s: %s", e.Call, e.Errno.Error())
}

func (e *SystemCallError) Unwrap() error { return e.Errno }

// NewSystemCallError wraps errno as a SystemCallError tagged with the
// name of the call that produced it.
func NewSystemCallError(call string, errno syscall.Errno) *SystemCallError {
	return &SystemCallError{Call: call, Errno: errno}
}

// CancelledError is returned when a blocking I/O call or blocking
// reference wait observed a cancellation rather than a normal wakeup.
type CancelledError struct {
	Op string
}

func (e *CancelledError) Error() string {
	if e.Op == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("lwt: %s: %s", e.Op, ErrCancelled.Error())
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// ClosedError is returned when an operation observes that its descriptor
// was closed out from under it, whether by itself or by another fiber.
type ClosedError struct {
	Op string
}

func (e *ClosedError) Error() string {
	if e.Op == "" {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("lwt: %s: %s", e.Op, ErrClosed.Error())
}

func (e *ClosedError) Unwrap() error { return ErrClosed }

// ResourceExhaustedError reports that a fixed-capacity resource (stack
// pool growth, multiplexer registration) could not be satisfied.
type ResourceExhaustedError struct {
	Resource string
	Cause    error
}

func (e *ResourceExhaustedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lwt: %s exhausted: %s", e.Resource, e.Cause)
	}
	return fmt.Sprintf("lwt: %s exhausted", e.Resource)
}

func (e *ResourceExhaustedError) Unwrap() error { return e.Cause }

// ProtocolViolationError indicates internal runtime corruption: the
// worker pool read back a reply that does not match the operation it
// submitted, or a similar invariant was observed broken. Per the error
// handling design, this is a programming error: callers that see this
// type returned rather than panicked should still treat it as fatal to
// the enclosing scheduler.
type ProtocolViolationError struct {
	Detail string
}

func (e *ProtocolViolationError) Error() string {
	return "lwt: protocol violation: " + e.Detail
}

// WrapError wraps an error with a message and an underlying cause,
// satisfying errors.Is(result, cause) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
