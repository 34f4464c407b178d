package promise

import (
	"errors"
	"fmt"
)

// pipe links a downstream cell to p's settlement. The dispatch callbacks
// run on a loop turn after p settles, never synchronously at registration.
func pipe[T, U any](p Promise[T], onFulfilled func(q *cell[U], v T), onRejected func(q *cell[U], err error)) Promise[U] {
	q := newCell[U](p.cell.loop)

	p.cell.subscribe(func(v T, err error) {
		if err != nil {
			onRejected(q, err)
			return
		}

		onFulfilled(q, v)
	})

	return Promise[U]{cell: q}
}

func passRejection[U any](q *cell[U], err error) {
	q.reject(err)
}

// settleResult applies a handler's return to the downstream cell: a non-nil
// error rejects, otherwise the value fulfills.
func settleResult[U any](q *cell[U], v U, err error) {
	if err != nil {
		q.reject(err)
		return
	}

	q.fulfill(v)
}

// adopt makes q mirror inner's eventual settlement. Adoption chains unwrap
// recursively because inner may itself be adopting.
func adopt[U any](q *cell[U], inner Promise[U]) {
	if inner.cell == nil {
		q.reject(errors.New("promise: handler returned the zero Promise"))
		return
	}

	if inner.cell == q {
		q.reject(ErrSelfResolution)
		return
	}

	inner.cell.subscribe(func(v U, err error) {
		if err != nil {
			q.reject(err)
			return
		}

		q.fulfill(v)
	})
}

// protect invokes a handler, converting a panic into an error return.
func protect[T, U any](fn func(T) (U, error), v T) (u U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	return fn(v)
}

func protectFlat[T, U any](fn func(T) Promise[U], v T) (p Promise[U], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	return fn(v), nil
}

// Then returns a promise for fn applied to p's fulfillment value. An error
// returned (or a panic) from fn rejects the result; an upstream rejection
// passes through with fn never invoked.
//
// A nil fn passes the fulfillment through unchanged; this requires U and T
// to be the same type.
func Then[T, U any](p Promise[T], fn func(T) (U, error)) Promise[U] {
	if fn == nil {
		return pipe(p, func(q *cell[U], v T) {
			u, ok := any(v).(U)
			if !ok {
				q.reject(fmt.Errorf("promise: pass-through of %T into Promise[%T]", v, u))
				return
			}

			q.fulfill(u)
		}, passRejection[U])
	}

	return pipe(p, func(q *cell[U], v T) {
		u, err := protect(fn, v)
		settleResult(q, u, err)
	}, passRejection[U])
}

// ThenFlat is Then for handlers that return a promise: the result adopts
// the settlement of the promise fn returns.
func ThenFlat[T, U any](p Promise[T], fn func(T) Promise[U]) Promise[U] {
	return pipe(p, func(q *cell[U], v T) {
		inner, err := protectFlat(fn, v)
		if err != nil {
			q.reject(err)
			return
		}

		adopt(q, inner)
	}, passRejection[U])
}

// ThenCatch registers both sides of a settlement at once, like the two-arg
// then. Exactly one of the handlers is invoked. Either may be nil, which
// passes the corresponding settlement through (a nil onFulfilled requires U
// and T to be the same type).
//
// Unlike chaining Then followed by Fail, onRejected here only sees the
// upstream rejection, not errors produced by onFulfilled.
func ThenCatch[T, U any](p Promise[T], onFulfilled func(T) (U, error), onRejected func(error) (U, error)) Promise[U] {
	return pipe(p, func(q *cell[U], v T) {
		if onFulfilled == nil {
			u, ok := any(v).(U)
			if !ok {
				q.reject(fmt.Errorf("promise: pass-through of %T into Promise[%T]", v, u))
				return
			}

			q.fulfill(u)
			return
		}

		u, err := protect(onFulfilled, v)
		settleResult(q, u, err)
	}, func(q *cell[U], err error) {
		if onRejected == nil {
			q.reject(err)
			return
		}

		u, herr := protect(onRejected, err)
		settleResult(q, u, herr)
	})
}

// ThenDo is Then for handlers that discard the fulfillment value.
func (p Promise[T]) ThenDo(fn func() error) Promise[Void] {
	if fn == nil {
		panic("promise: ThenDo called with nil handler")
	}

	return Then(p, func(T) (Void, error) {
		return Void{}, fn()
	})
}

// Fail recovers from rejections whose error matches the handler's
// parameter type E, in the errors.As sense: the stored error is an E or
// wraps one; interface types match anything implementing them. E = error is
// the catch-all. Mismatched rejections and fulfillments pass through with
// fn never invoked.
//
// The handler's return becomes the fulfillment of the result, an error
// return (or panic) its rejection.
func Fail[T any, E error](p Promise[T], fn func(E) (T, error)) Promise[T] {
	return pipe(p, func(q *cell[T], v T) {
		q.fulfill(v)
	}, func(q *cell[T], err error) {
		var target E
		if fn == nil || !errors.As(err, &target) {
			q.reject(err)
			return
		}

		u, herr := protect(fn, target)
		settleResult(q, u, herr)
	})
}

// FailFlat is Fail for handlers that return a promise.
func FailFlat[T any, E error](p Promise[T], fn func(E) Promise[T]) Promise[T] {
	return pipe(p, func(q *cell[T], v T) {
		q.fulfill(v)
	}, func(q *cell[T], err error) {
		var target E
		if fn == nil || !errors.As(err, &target) {
			q.reject(err)
			return
		}

		inner, herr := protectFlat(fn, target)
		if herr != nil {
			q.reject(herr)
			return
		}

		adopt(q, inner)
	})
}
