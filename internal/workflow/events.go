package workflow

import (
	"context"

	"encodefleet/internal/queue"
)

// EventSink receives accepted job completions.
type EventSink interface {
	HandleCompletion(ctx context.Context, event queue.CompletionEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event queue.CompletionEvent)

// HandleCompletion calls f.
func (f EventSinkFunc) HandleCompletion(ctx context.Context, event queue.CompletionEvent) {
	f(ctx, event)
}

type nopSink struct{}

func (nopSink) HandleCompletion(context.Context, queue.CompletionEvent) {}

// Publish hands every event to sink.
func Publish(ctx context.Context, sink EventSink, events ...queue.CompletionEvent) {
	if sink == nil {
		return
	}
	for _, event := range events {
		sink.HandleCompletion(ctx, event)
	}
}
