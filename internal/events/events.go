// Package events is a small in-process publish/subscribe bus used to fan
// lifecycle events (now-playing changes, worker health) out to listeners
// such as the HTTP status surface, without coupling publishers to them.
package events

import "sync"

// EventType identifies the kind of event carried on the bus.
type EventType string

const (
	// EventNowPlaying fires whenever a channel's currently-airing item changes.
	EventNowPlaying EventType = "now_playing"
	// EventHealth fires periodically with a snapshot of a channel's runtime state.
	EventHealth EventType = "health"
	// EventTranscoderLifecycle fires on transcoder spawn/exit/error (C1).
	EventTranscoderLifecycle EventType = "transcoder.lifecycle"
)

// Payload is a loosely-typed event body; fields vary by EventType.
type Payload map[string]any

// Event is a single published message.
type Event struct {
	Type    EventType
	Payload Payload
}

// Handler receives published events. Implementations must be safe to call
// concurrently and must not block the publisher for long.
type Handler func(Event)

// Bus is a process-wide, goroutine-safe publish/subscribe hub.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for the given event type. Returns an
// unsubscribe function.
func (b *Bus) Subscribe(t EventType, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
	idx := len(b.handlers[t]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[t]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// Publish calls every handler registered for t with the given payload.
// Handlers run synchronously on the caller's goroutine; slow handlers should
// hand work off to their own goroutine.
func (b *Bus) Publish(t EventType, p Payload) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[t]...)
	b.mu.RUnlock()

	for _, h := range hs {
		if h != nil {
			h(Event{Type: t, Payload: p})
		}
	}
}

var (
	globalBus     *Bus
	globalBusOnce sync.Once
)

// Global returns the process-wide event bus, creating it on first use. Only
// the orchestrator (C10) and the components it wires should publish on it.
func Global() *Bus {
	globalBusOnce.Do(func() { globalBus = NewBus() })
	return globalBus
}
