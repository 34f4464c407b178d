// Package eventloop implements a single-threaded, cooperative event loop
// with a FIFO queue for deferred callbacks and one-shot timers.
//
// Callbacks only ever run on the goroutine driving the loop via RunUntil
// or Drain.
// Defer and After may be called from any goroutine; this is how producers
// running off-loop marshal work onto the loop.
package eventloop

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// DeadlockTimeout is how long RunUntil waits with an empty queue, no armed
// timers, and an unsatisfied predicate before it gives up and panics.
const DeadlockTimeout = 40 * time.Second

// Loop is a cooperative event loop. The zero value is not usable, create
// loops with New.
type Loop struct {
	id     string
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	timers timerHeap
	seq    uint64

	// wake unblocks an idle RunUntil when work is scheduled off-loop
	wake chan struct{}
}

type options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

type Option func(o *options)

// WithClock sets the clock used for timers. Tests use this to inject a
// mock clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

// WithLogger sets the logger used by the loop.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.Logger = logger
	}
}

func New(opts ...Option) *Loop {
	o := &options{
		Clock:  clock.New(),
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	id := uuid.NewString()

	return &Loop{
		id:     id,
		clock:  o.Clock,
		logger: o.Logger.With(slog.String(LoopIDKey, id)),
		wake:   make(chan struct{}, 1),
	}
}

// ID returns the unique identifier of this loop.
func (l *Loop) ID() string {
	return l.id
}

// Now returns the current time of the loop's clock.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Defer schedules fn to run on a subsequent turn of the loop. Deferred
// callbacks run in FIFO order.
func (l *Loop) Defer(fn func()) {
	if fn == nil {
		panic("eventloop: Defer called with nil callback")
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	l.wakeUp()
}

// After schedules fn to run once d has elapsed on the loop's clock. Timers
// with equal fire times run in scheduling order. A non-positive d fires on
// the next idle turn.
func (l *Loop) After(d time.Duration, fn func()) {
	if fn == nil {
		panic("eventloop: After called with nil callback")
	}

	if d < 0 {
		d = 0
	}

	now := l.clock.Now()
	at := now.Add(d)

	l.mu.Lock()
	l.seq++
	t := &timer{at: at, seq: l.seq, fn: fn}
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.logger.Debug("scheduled timer",
		slog.Uint64(TimerSeqKey, t.seq),
		slog.Time(NowKey, now),
		slog.Time(AtKey, at),
		slog.Int64(DurationKey, int64(d/time.Millisecond)))

	l.wakeUp()
}

// RunUntil drives the loop on the calling goroutine until pred returns
// true. It runs queued callbacks and due timers; when there is nothing
// runnable it sleeps on the clock until the next timer fires or work is
// scheduled from another goroutine.
//
// RunUntil is reentrant: a callback may call RunUntil again, which drains
// the same queue on the same goroutine.
func (l *Loop) RunUntil(pred func() bool) {
	starved := time.Duration(0)

	for !pred() {
		if fn := l.next(); fn != nil {
			starved = 0
			fn()
			continue
		}

		if starved >= DeadlockTimeout {
			l.logger.Error("event loop starved", slog.Duration(StarvedForKey, starved))
			panic(fmt.Sprintf("eventloop: deadlock: nothing left to run after %v and predicate still false", starved))
		}

		starved += l.idle(DeadlockTimeout - starved)
	}
}

// Drain runs queued callbacks and due timers until nothing is runnable,
// without sleeping. Tests with a mock clock advance the clock and then
// Drain to fire what became due.
func (l *Loop) Drain() {
	for {
		fn := l.next()
		if fn == nil {
			return
		}

		fn()
	}
}

// Len returns the number of queued callbacks plus armed timers.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue) + len(l.timers)
}

// next pops the next runnable callback: queued turns first, then due
// timers.
func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]

		return fn
	}

	if len(l.timers) > 0 && !l.timers[0].at.After(l.clock.Now()) {
		t := heap.Pop(&l.timers).(*timer)

		return t.fn
	}

	return nil
}

// idle blocks until the next timer is due, work arrives from another
// goroutine, or limit elapses. It reports how long it was actually idle for
// the starvation accounting in RunUntil; any wake-up resets that clock via
// the caller.
func (l *Loop) idle(limit time.Duration) time.Duration {
	l.mu.Lock()
	wait := limit
	starving := true
	if len(l.timers) > 0 {
		starving = false
		if until := l.timers[0].at.Sub(l.clock.Now()); until < wait {
			wait = until
		}
	}
	l.mu.Unlock()

	if wait <= 0 {
		return 0
	}

	start := l.clock.Now()
	t := l.clock.Timer(wait)
	defer t.Stop()

	select {
	case <-l.wake:
		return 0
	case <-t.C:
		if starving {
			return l.clock.Now().Sub(start)
		}

		return 0
	}
}

func (l *Loop) wakeUp() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
