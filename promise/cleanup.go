package promise

// Finally runs fn once p settles, regardless of outcome, and propagates
// p's settlement unchanged. An error returned (or a panic) from fn replaces
// the outcome with that rejection.
func (p Promise[T]) Finally(fn func() error) Promise[T] {
	if fn == nil {
		panic("promise: Finally called with nil handler")
	}

	run := func(q *cell[T], propagate func()) {
		if err := protect0(fn); err != nil {
			q.reject(err)
			return
		}

		propagate()
	}

	return pipe(p, func(q *cell[T], v T) {
		run(q, func() { q.fulfill(v) })
	}, func(q *cell[T], err error) {
		run(q, func() { q.reject(err) })
	})
}

// FinallyFlat is Finally for handlers that return a promise: the upstream
// outcome is held back until the inner promise settles. The inner promise's
// value is ignored, but its rejection replaces the upstream outcome.
func FinallyFlat[T, V any](p Promise[T], fn func() Promise[V]) Promise[T] {
	if fn == nil {
		panic("promise: FinallyFlat called with nil handler")
	}

	run := func(q *cell[T], propagate func()) {
		inner, err := protectFlat0(fn)
		if err != nil {
			q.reject(err)
			return
		}

		if inner.cell == nil {
			propagate()
			return
		}

		inner.cell.subscribe(func(_ V, ierr error) {
			if ierr != nil {
				q.reject(ierr)
				return
			}

			propagate()
		})
	}

	return pipe(p, func(q *cell[T], v T) {
		run(q, func() { q.fulfill(v) })
	}, func(q *cell[T], err error) {
		run(q, func() { q.reject(err) })
	})
}

// Tap runs fn with the fulfillment value and passes the fulfillment
// through untouched. On rejection fn is not invoked and the rejection
// passes through. An error returned (or a panic) from fn rejects the
// result.
func (p Promise[T]) Tap(fn func(v T) error) Promise[T] {
	if fn == nil {
		panic("promise: Tap called with nil handler")
	}

	return pipe(p, func(q *cell[T], v T) {
		if err := protect1(fn, v); err != nil {
			q.reject(err)
			return
		}

		q.fulfill(v)
	}, passRejection[T])
}

// TapFlat is Tap for handlers that return a promise: the fulfillment is
// held back until the inner promise settles, its value is ignored, and its
// rejection replaces the fulfillment.
func TapFlat[T, V any](p Promise[T], fn func(v T) Promise[V]) Promise[T] {
	if fn == nil {
		panic("promise: TapFlat called with nil handler")
	}

	return pipe(p, func(q *cell[T], v T) {
		inner, err := protectFlat(fn, v)
		if err != nil {
			q.reject(err)
			return
		}

		if inner.cell == nil {
			q.fulfill(v)
			return
		}

		inner.cell.subscribe(func(_ V, ierr error) {
			if ierr != nil {
				q.reject(ierr)
				return
			}

			q.fulfill(v)
		})
	}, passRejection[T])
}

func protect0(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	return fn()
}

func protect1[T any](fn func(T) error, v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	return fn(v)
}

func protectFlat0[V any](fn func() Promise[V]) (p Promise[V], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()

	return fn(), nil
}
