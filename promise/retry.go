package promise

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryOptions struct {
	// Maximum number of attempts, including the first
	MaxAttempts int

	// Time to wait before the first retry
	InitialInterval time.Duration

	// Maximum delay for any individual retry attempt
	MaxInterval time.Duration

	// Coefficient for calculating the next retry delay
	Multiplier float64
}

var DefaultRetryOptions = RetryOptions{
	MaxAttempts:     3,
	InitialInterval: 100 * time.Millisecond,
	Multiplier:      1,
}

// schedulerClock adapts a Scheduler to the backoff clock so intervals are
// computed against loop time.
type schedulerClock struct {
	s Scheduler
}

func (sc schedulerClock) Now() time.Time {
	return sc.s.Now()
}

// Retry runs op and adopts its promise. When an attempt rejects, the next
// one is scheduled after the backoff interval on the loop's timer; the
// returned promise settles with the first fulfillment or the rejection of
// the final attempt.
//
// Wrapping a rejection in backoff.Permanent aborts remaining attempts
// immediately.
func Retry[T any](s Scheduler, opts RetryOptions, op func(attempt int) Promise[T]) Promise[T] {
	if opts.MaxAttempts <= 1 {
		// Short-circuit if we don't need to retry
		return runAttempt(s, op, 0)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialInterval
	bo.Multiplier = opts.Multiplier
	if opts.MaxInterval > 0 {
		bo.MaxInterval = opts.MaxInterval
	}
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	bo.Clock = schedulerClock{s: s}
	bo.Reset()

	q := newCell[T](s)

	var attempt func(n int)
	attempt = func(n int) {
		inner := runAttempt(s, op, n)

		inner.cell.subscribe(func(v T, err error) {
			if err == nil {
				q.fulfill(v)
				return
			}

			var permanent *backoff.PermanentError
			if n+1 >= opts.MaxAttempts || errors.As(err, &permanent) {
				q.reject(err)
				return
			}

			s.After(bo.NextBackOff(), func() {
				attempt(n + 1)
			})
		})
	}

	attempt(0)

	return Promise[T]{cell: q}
}

// runAttempt guards a single invocation of op: a panic or a zero Promise
// becomes a rejected attempt instead of tearing down the loop.
func runAttempt[T any](s Scheduler, op func(attempt int) Promise[T], n int) Promise[T] {
	inner, err := protectFlat(op, n)
	if err != nil {
		return Reject[T](s, err)
	}

	if inner.cell == nil {
		return Reject[T](s, errors.New("promise: retry op returned the zero Promise"))
	}

	return inner
}
