package observability

import (
	"context"
	"sync"

	"github.com/surreyclinic/intake/pkg/domain"
)

// Broadcaster fans engine events out to subscribers (the SSE endpoint, the
// WebSocket transport). It implements ports.EventSink. Publish never blocks:
// a subscriber that falls behind its buffer loses events rather than
// stalling the turn loop.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan domain.Event]struct{}
	buffer int
	closed bool
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[chan domain.Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber. The returned cancel function removes the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish implements ports.EventSink.
func (b *Broadcaster) Publish(ctx context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop instead of blocking.
		}
	}
}

// Close terminates all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
