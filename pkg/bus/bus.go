// Package bus provides the in-process event bus that fans pipeline
// events out to subscribers. Delivery is at-most-once: a subscriber
// whose buffer is full loses the event rather than stalling the
// pipeline.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies what kind of pipeline event occurred.
type EventType string

const (
	EventDetection       EventType = "detection"
	EventPatternUpdated  EventType = "pattern.updated"
	EventThreatCreated   EventType = "threat.created"
	EventThreatUpdated   EventType = "threat.updated"
	EventThreatResolved  EventType = "threat.resolved"
	EventDispatchOutcome EventType = "dispatch.outcome"
	EventReasoning       EventType = "reasoning"
)

// Event is a single pipeline event. Payload is one of the pkg/messages
// types corresponding to the event type.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

type subscriber struct {
	ch     chan Event
	filter map[EventType]bool // nil means all events
}

// Bus is a non-blocking publish/subscribe bus. The zero value is not
// usable; construct with New.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	closed  bool
	dropped atomic.Uint64
	logger  zerolog.Logger
}

// New creates a Bus that logs dropped events through the given logger.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers a subscriber with the given channel buffer. If
// types is empty the subscriber receives every event. The returned
// cancel function unregisters the subscriber and closes its channel;
// it is safe to call more than once.
func (b *Bus) Subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.filter[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		close(sub.ch)
	} else {
		b.subs[id] = sub
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to all matching subscribers without
// blocking. Events for slow subscribers are dropped and counted.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter[evt.Type] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
			b.logger.Warn().
				Str("event_type", string(evt.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Dropped returns how many events have been dropped so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
