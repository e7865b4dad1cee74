package bus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ursa-watch/ursa/pkg/messages"
)

func TestPublishSubscribe(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	ch, cancel := b.Subscribe(4)
	defer cancel()

	det := &messages.Detection{DetectionID: "det-1", CameraID: "cam_001"}
	b.Publish(Event{Type: EventDetection, Payload: det})

	select {
	case evt := <-ch:
		assert.Equal(t, EventDetection, evt.Type)
		assert.Same(t, det, evt.Payload)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeFilter(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	ch, cancel := b.Subscribe(4, EventThreatCreated)
	defer cancel()

	b.Publish(Event{Type: EventDetection})
	b.Publish(Event{Type: EventThreatCreated})

	evt := <-ch
	assert.Equal(t, EventThreatCreated, evt.Type)
	assert.Empty(t, ch)
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: EventDetection})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.EqualValues(t, 99, b.Dropped())
	assert.Len(t, ch, 1)
}

func TestCancelIdempotent(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	b.Publish(Event{Type: EventDetection})
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	b := New(zerolog.Nop())
	ch, cancel := b.Subscribe(1)
	b.Close()

	_, open := <-ch
	require.False(t, open)

	// Cancel after close must not panic on the already-removed sub.
	cancel()
	b.Publish(Event{Type: EventDetection})
}
