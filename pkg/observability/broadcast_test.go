package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/observability"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := observability.NewBroadcaster(4)
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	ev := domain.Event{Type: domain.EventStaffAlert, SessionID: "s1"}
	b.Publish(context.Background(), ev)

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "s1", got.SessionID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := observability.NewBroadcaster(1)
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Buffer is 1; extra publishes must drop, not block.
		for i := 0; i < 10; i++ {
			b.Publish(context.Background(), domain.Event{Type: domain.EventNodeEnter})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBroadcaster_CancelStopsDelivery(t *testing.T) {
	b := observability.NewBroadcaster(4)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open, "canceled subscription channel should be closed")

	// Publishing after cancel is a no-op for this subscriber.
	b.Publish(context.Background(), domain.Event{Type: domain.EventNodeEnter})
}

func TestMetrics_HooksCountEscalations(t *testing.T) {
	m := observability.NewMetrics("test")
	hooks := m.Hooks()

	require.NotNil(t, hooks.OnStaffAlert)
	hooks.OnStaffAlert(context.Background(), &domain.Event{Type: domain.EventStaffAlert})
	hooks.OnExtraction(context.Background(), &domain.ExtractionEvent{Duration: 120 * time.Millisecond, TimedOut: true})

	// The registry serves without panicking once hooks have fired.
	require.NotNil(t, m.Handler())
}
