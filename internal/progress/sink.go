package progress

import "context"

// Sink receives flushed event batches from a Hub. A Sink error is logged by
// the hub and never reaches the validation pipeline.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events without blocking the caller.
type Emitter interface {
	Emit(evt Event)
}
