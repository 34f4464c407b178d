package promise

import (
	"time"
)

// Delay returns a promise that fulfills with p's value d after p fulfills.
// A rejection is not delayed: it propagates on the next turn.
func (p Promise[T]) Delay(d time.Duration) Promise[T] {
	return pipe(p, func(q *cell[T], v T) {
		q.loop.After(d, func() {
			q.fulfill(v)
		})
	}, passRejection[T])
}

// Timeout races p against a timer. If p settles first the settlement is
// adopted and the timer firing is a no-op; if the timer fires first the
// result rejects with a *TimeoutError and p's eventual settlement is
// discarded. The upstream producer keeps running either way; timing out
// does not cancel it.
func (p Promise[T]) Timeout(d time.Duration) Promise[T] {
	q := newCell[T](p.cell.loop)

	q.loop.After(d, func() {
		q.reject(&TimeoutError{After: d})
	})

	p.cell.subscribe(func(v T, err error) {
		if err != nil {
			q.reject(err)
			return
		}

		q.fulfill(v)
	})

	return Promise[T]{cell: q}
}
