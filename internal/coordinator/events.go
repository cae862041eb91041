package coordinator

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventStatusUpdate   = "status_update"
	EventTimerFinished  = "timer_finished"
	EventUpdateFailed   = "update_failed"
	EventOvenDiscovered = "oven_discovered"
)

// Event represents a coordinator event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatusData is the payload for status_update and timer_finished events.
type StatusData struct {
	Account  string   `json:"account"`
	OvenID   string   `json:"oven_id"`
	Snapshot Snapshot `json:"snapshot"`
}

// FailureData is the payload for update_failed events.
type FailureData struct {
	Account string `json:"account"`
	OvenID  string `json:"oven_id"`
	Error   string `json:"error"`
}

// DiscoveryData is the payload for oven_discovered events.
type DiscoveryData struct {
	Account string `json:"account"`
	OvenID  string `json:"oven_id"`
	Name    string `json:"name,omitempty"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type subscription struct {
	eventType string // empty matches every type
	handler   EventHandler
}

// EventBus provides pub/sub for coordinator events.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.subscribe(subscription{eventType: eventType, handler: handler})
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.subscribe(subscription{handler: handler})
}

func (eb *EventBus) subscribe(sub subscription) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = sub
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.subs, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.eventType == "" || sub.eventType == event.Type {
			handlers = append(handlers, sub.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
