package promise

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-promises/eventloop"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func Test_DelayFulfilled(t *testing.T) {
	l := newLoop()

	start := l.Now()
	elapsed := time.Duration(-1)

	p := Resolve(l, 42).Delay(200 * time.Millisecond).Finally(func() error {
		elapsed = l.Now().Sub(start)
		return nil
	})

	v, err := p.Wait()
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.True(t, p.IsFulfilled())

	// Coarse timers: accurate to about 5% of the interval
	require.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
	require.Less(t, elapsed, 800*time.Millisecond)
}

func Test_DelayRejectedIsImmediate(t *testing.T) {
	l := newLoop()

	start := l.Now()
	elapsed := time.Duration(-1)

	p := Reject[int](l, errors.New("foo")).Delay(200 * time.Millisecond).Finally(func() error {
		elapsed = l.Now().Sub(start)
		return nil
	})

	_, err := p.Wait()
	require.EqualError(t, err, "foo")
	require.True(t, p.IsRejected())

	// No delay is applied to rejections
	require.Less(t, elapsed, 50*time.Millisecond)
}

func Test_DelayDeterministic(t *testing.T) {
	mock := clock.NewMock()
	l := eventloop.New(eventloop.WithClock(mock))

	p := Resolve(l, 42).Delay(time.Second)

	l.Drain()
	require.True(t, p.IsPending())

	mock.Add(999 * time.Millisecond)
	l.Drain()
	require.True(t, p.IsPending())

	mock.Add(time.Millisecond)
	l.Drain()
	require.True(t, p.IsFulfilled())
}

func Test_TimeoutUpstreamFulfillsFirst(t *testing.T) {
	l := newLoop()

	start := l.Now()
	elapsed := time.Duration(-1)

	p := New(l, func(resolve ResolveFunc[int]) {
		l.After(100*time.Millisecond, func() {
			resolve(42)
		})
	}).Timeout(400 * time.Millisecond).Finally(func() error {
		elapsed = l.Now().Sub(start)
		return nil
	})

	v, err := p.Wait()
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.True(t, p.IsFulfilled())
	require.Less(t, elapsed, 400*time.Millisecond)
}

func Test_TimeoutUpstreamRejectsFirst(t *testing.T) {
	l := newLoop()

	start := l.Now()
	elapsed := time.Duration(-1)

	p := NewWithReject(l, func(_ ResolveFunc[int], reject RejectFunc) {
		l.After(100*time.Millisecond, func() {
			reject(errors.New("foo"))
		})
	}).Timeout(400 * time.Millisecond).Finally(func() error {
		elapsed = l.Now().Sub(start)
		return nil
	})

	_, err := p.Wait()
	require.EqualError(t, err, "foo")
	require.True(t, p.IsRejected())
	require.Less(t, elapsed, 400*time.Millisecond)
}

func Test_TimeoutFires(t *testing.T) {
	l := newLoop()

	start := l.Now()
	elapsed := time.Duration(-1)

	p := New(l, func(resolve ResolveFunc[int]) {
		l.After(400*time.Millisecond, func() {
			resolve(42)
		})
	}).Timeout(150 * time.Millisecond).Finally(func() error {
		elapsed = l.Now().Sub(start)
		return nil
	})

	failed := false
	q := Fail(p, func(*TimeoutError) (int, error) {
		failed = true
		return -1, nil
	})

	v, err := q.Wait()
	require.NoError(t, err)
	require.Equal(t, -1, v)
	require.True(t, p.IsRejected())
	require.True(t, failed)

	var te *TimeoutError
	_, perr := p.Wait()
	require.ErrorAs(t, perr, &te)
	require.Equal(t, 150*time.Millisecond, te.After)

	require.GreaterOrEqual(t, elapsed, 142*time.Millisecond)
	require.Less(t, elapsed, 400*time.Millisecond)
}

func Test_TimeoutLateSettlementIgnored(t *testing.T) {
	mock := clock.NewMock()
	l := eventloop.New(eventloop.WithClock(mock))

	p, resolve, _ := WithResolvers[int](l)
	q := p.Timeout(time.Second)

	mock.Add(time.Second)
	l.Drain()
	require.True(t, q.IsRejected())

	// The upstream settles after the timer already won the race
	resolve(42)
	l.Drain()

	require.True(t, p.IsFulfilled())
	require.True(t, q.IsRejected())
}

func Test_TimeoutDeterministic(t *testing.T) {
	mock := clock.NewMock()
	l := eventloop.New(eventloop.WithClock(mock))

	p, _, _ := WithResolvers[int](l)
	q := p.Timeout(2 * time.Second)

	mock.Add(time.Second)
	l.Drain()
	require.True(t, q.IsPending())

	mock.Add(time.Second)
	l.Drain()
	require.True(t, q.IsRejected())
}
