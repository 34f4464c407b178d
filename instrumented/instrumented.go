// Package instrumented wraps an event loop so that every scheduled
// callback shows up as an OpenTelemetry span. It is a drop-in replacement
// wherever a promise.Scheduler is expected:
//
//	loop := instrumented.NewLoop(eventloop.New(), tracerProvider)
//	p := promise.Resolve(loop, 42).Delay(time.Second)
//
// Spans start when a callback is scheduled and end when it has run, so the
// span duration covers queue latency plus execution.
package instrumented

import (
	"context"
	"time"

	"github.com/cschleiden/go-promises/eventloop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Loop decorates an eventloop.Loop with tracing. RunUntil, Now, Drain and
// the other driving methods are promoted unchanged.
type Loop struct {
	*eventloop.Loop

	tracer trace.Tracer
}

func NewLoop(l *eventloop.Loop, tp trace.TracerProvider) *Loop {
	return &Loop{
		Loop:   l,
		tracer: tp.Tracer("github.com/cschleiden/go-promises/instrumented"),
	}
}

// Defer schedules fn wrapped in an "eventloop.defer" span.
func (l *Loop) Defer(fn func()) {
	_, span := l.tracer.Start(context.Background(), "eventloop.defer",
		trace.WithAttributes(
			attribute.String(eventloop.LoopIDKey, l.ID()),
			attribute.Int(eventloop.QueueLenKey, l.Len()),
		))

	l.Loop.Defer(func() {
		defer span.End()

		fn()
	})
}

// After schedules fn wrapped in an "eventloop.timer" span.
func (l *Loop) After(d time.Duration, fn func()) {
	_, span := l.tracer.Start(context.Background(), "eventloop.timer",
		trace.WithAttributes(
			attribute.String(eventloop.LoopIDKey, l.ID()),
			attribute.Int64(eventloop.DurationKey, int64(d/time.Millisecond)),
		))

	l.Loop.After(d, func() {
		defer span.End()

		fn()
	})
}
