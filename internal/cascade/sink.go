package cascade

import (
	"context"

	"github.com/banshee-data/behavior-cascade/internal/sequence"
)

// Event is a confirmed behavior as delivered to callers and sinks.
type Event struct {
	sequence.ConfirmedEvent
	FrameID    int64  `json:"frame_id"`
	Behavior   string `json:"behavior"`
	PipelineID string `json:"pipeline_id"`
}

// EventSink receives the events of every pass that produced any, in pass
// order. Sinks are called from the pass itself and should not block for
// long. A sink error is logged and never fails the pass.
type EventSink interface {
	PersistEvents(ctx context.Context, events []Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, events []Event) error

// PersistEvents implements EventSink.
func (f SinkFunc) PersistEvents(ctx context.Context, events []Event) error { return f(ctx, events) }
