package ports

import (
	"context"

	"github.com/surreyclinic/intake/pkg/domain"
)

// EventSink receives the side-effecting events the flow engine emits
// (staff alerts, completed intakes, session endings). Implementations include
// the SSE broadcaster, the paging webhook, and downstream intake storage.
//
// Publish must not block the turn loop; slow sinks should buffer internally.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, ev domain.Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, ev domain.Event) { f(ctx, ev) }
