// Package promise implements typed promises on top of a single-threaded
// cooperative event loop.
//
// A Promise[T] is a cheap value handle onto a shared settlement cell. The
// cell settles exactly once, to a value of type T or to an error, and every
// continuation registered against it is dispatched through the loop's
// Defer, never synchronously from the call that registered it.
//
// Combinators that introduce a type parameter (Then, ThenFlat, Fail,
// FinallyFlat, TapFlat, ...) are package-level functions because Go methods
// cannot introduce new type parameters; the others (Finally, Tap, Delay,
// Timeout, ...) are methods.
package promise

import (
	"time"
)

// Void is the value type of promises that carry no payload.
type Void = struct{}

// Scheduler is the event-loop seam the promise package depends on.
// *eventloop.Loop implements it; so does *instrumented.Loop.
type Scheduler interface {
	// Defer schedules fn to run on a subsequent loop turn, FIFO.
	Defer(fn func())

	// After schedules fn to run once d has elapsed.
	After(d time.Duration, fn func())

	// RunUntil drives the loop on the calling goroutine until pred is true.
	RunUntil(pred func() bool)

	// Now returns the loop's clock time.
	Now() time.Time
}

// ResolveFunc fulfills the promise it was created for. Only the first call
// to either capability of a resolver pair has an effect.
type ResolveFunc[T any] func(v T)

// RejectFunc rejects the promise it was created for. Only the first call
// to either capability of a resolver pair has an effect.
type RejectFunc func(err error)

type state int

const (
	statePending state = iota
	stateFulfilled
	stateRejected
)

// cell is the shared settlement record behind one or more Promise handles.
// It settles exactly once; all mutation happens on the loop goroutine.
type cell[T any] struct {
	loop Scheduler

	state state
	value T
	err   error

	// waiters fire inline at settlement, in registration order. Each one
	// defers its continuation itself.
	waiters []func()
}

// Promise is a handle to a value of type T that becomes available on a
// later turn of the event loop, or to the error that prevented it.
//
// Copying a Promise yields another view onto the same settlement; the zero
// Promise is not usable.
type Promise[T any] struct {
	cell *cell[T]
}

func newCell[T any](s Scheduler) *cell[T] {
	if s == nil {
		panic("promise: nil scheduler")
	}

	return &cell[T]{loop: s}
}

func (c *cell[T]) settle(st state, v T, err error) bool {
	if c.state != statePending {
		return false
	}

	c.state = st
	c.value = v
	c.err = err

	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w()
	}

	return true
}

func (c *cell[T]) fulfill(v T) bool {
	return c.settle(stateFulfilled, v, nil)
}

func (c *cell[T]) reject(err error) bool {
	if err == nil {
		err = errNilRejection
	}

	var zero T

	return c.settle(stateRejected, zero, err)
}

// subscribe registers a continuation for the cell's settlement. The
// continuation always runs on a later loop turn, even when the cell is
// already settled.
func (c *cell[T]) subscribe(fn func(v T, err error)) {
	w := func() {
		v, err := c.value, c.err
		c.loop.Defer(func() {
			fn(v, err)
		})
	}

	if c.state == statePending {
		c.waiters = append(c.waiters, w)
		return
	}

	w()
}

// New creates a promise and runs producer synchronously with its resolve
// capability. A panic in the producer rejects the promise, unless it
// already settled.
func New[T any](s Scheduler, producer func(resolve ResolveFunc[T])) Promise[T] {
	p, resolve, reject := WithResolvers[T](s)

	runProducer(reject, func() {
		producer(resolve)
	})

	return p
}

// NewWithReject creates a promise and runs producer synchronously with
// both capabilities of its resolver pair. A panic in the producer rejects
// the promise, unless it already settled.
func NewWithReject[T any](s Scheduler, producer func(resolve ResolveFunc[T], reject RejectFunc)) Promise[T] {
	p, resolve, reject := WithResolvers[T](s)

	runProducer(reject, func() {
		producer(resolve, reject)
	})

	return p
}

// WithResolvers creates a pending promise together with its resolver pair.
// The first call to either capability settles the promise; later calls to
// either are no-ops. Both capabilities may be copied freely.
//
// The capabilities must be invoked on the loop goroutine. Producers running
// on other goroutines marshal through the scheduler:
//
//	p, resolve, _ := promise.WithResolvers[int](loop)
//	go func() {
//		v := expensive()
//		loop.Defer(func() { resolve(v) })
//	}()
func WithResolvers[T any](s Scheduler) (Promise[T], ResolveFunc[T], RejectFunc) {
	c := newCell[T](s)

	resolve := func(v T) {
		c.fulfill(v)
	}
	reject := func(err error) {
		c.reject(err)
	}

	return Promise[T]{cell: c}, resolve, reject
}

// runProducer invokes fn, converting a panic into a rejection. The
// rejection loses the race if the producer settled before panicking; the
// first settlement wins.
func runProducer(reject RejectFunc, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			reject(newPanicError(r))
		}
	}()

	fn()
}

// Resolve returns a promise immediately fulfilled with v.
func Resolve[T any](s Scheduler, v T) Promise[T] {
	c := newCell[T](s)
	c.fulfill(v)

	return Promise[T]{cell: c}
}

// ResolveVoid returns an immediately fulfilled Promise[Void].
func ResolveVoid(s Scheduler) Promise[Void] {
	return Resolve(s, Void{})
}

// Reject returns a promise immediately rejected with err.
func Reject[T any](s Scheduler, err error) Promise[T] {
	c := newCell[T](s)
	c.reject(err)

	return Promise[T]{cell: c}
}

// RejectValue returns a promise rejected with an arbitrary value. Non-error
// values are wrapped in a *RejectionError carrier.
func RejectValue[T any](s Scheduler, v any) Promise[T] {
	return Reject[T](s, ErrValue(v))
}

// IsPending reports whether the promise has not settled yet.
func (p Promise[T]) IsPending() bool {
	return p.cell.state == statePending
}

// IsFulfilled reports whether the promise settled with a value.
func (p Promise[T]) IsFulfilled() bool {
	return p.cell.state == stateFulfilled
}

// IsRejected reports whether the promise settled with an error.
func (p Promise[T]) IsRejected() bool {
	return p.cell.state == stateRejected
}

// Scheduler returns the loop this promise is bound to.
func (p Promise[T]) Scheduler() Scheduler {
	return p.cell.loop
}

// Wait drives the event loop on the calling goroutine until the promise
// settles and returns the settlement. Wait may be called from inside a
// handler; it re-enters the loop driver.
func (p Promise[T]) Wait() (T, error) {
	c := p.cell

	c.loop.RunUntil(func() bool {
		return c.state != statePending
	})

	return c.value, c.err
}
