package promise

import (
	"errors"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
)

// ErrSelfResolution is the rejection a promise settles with when it would
// have to adopt itself to proceed.
var ErrSelfResolution = errors.New("promise: cannot adopt itself")

var errNilRejection = errors.New("promise: rejected with nil error")

// TimeoutError is the rejection produced by Promise.Timeout when the timer
// wins the race against the upstream settlement.
type TimeoutError struct {
	// After is the timeout that elapsed.
	After time.Duration
}

func (te *TimeoutError) Error() string {
	return fmt.Sprintf("promise: timed out after %v", te.After)
}

// Timeout reports true, matching the convention of net.Error. Handlers can
// catch any timeout-shaped error with an interface target:
//
//	promise.Fail(p, func(err interface{ error; Timeout() bool }) (int, error) { ... })
func (te *TimeoutError) Timeout() bool {
	return true
}

// PanicError carries a panic recovered from a producer or a handler,
// together with the stack at the recovery point.
type PanicError struct {
	value      any
	stacktrace string
}

func newPanicError(v any) *PanicError {
	return &PanicError{
		value:      v,
		stacktrace: string(goerrors.Wrap(v, 3).Stack()),
	}
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("promise: panic: %v", pe.value)
}

// Value returns the recovered panic value.
func (pe *PanicError) Value() any {
	return pe.value
}

// Stacktrace returns the stack captured when the panic was recovered.
func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}

// Unwrap exposes a panicked error to errors.Is/As, so typed Fail handlers
// still match the original error through a panic.
func (pe *PanicError) Unwrap() error {
	if err, ok := pe.value.(error); ok {
		return err
	}

	return nil
}

// RejectionError carries a non-error rejection payload, such as a string or
// a number.
type RejectionError struct {
	value any
}

func (re *RejectionError) Error() string {
	return fmt.Sprintf("%v", re.value)
}

// Value returns the rejection payload.
func (re *RejectionError) Value() any {
	return re.value
}

// ErrValue converts an arbitrary rejection value into an error. Errors pass
// through unchanged, everything else is wrapped in a *RejectionError.
func ErrValue(v any) error {
	if err, ok := v.(error); ok {
		return err
	}

	return &RejectionError{value: v}
}
