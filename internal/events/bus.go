package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event names emitted by the deployment record store. Observers use them to
// refresh their view; core workflows never coordinate through the bus.
const (
	DeploymentCreated = "deployment.created"
	DeploymentUpdated = "deployment.updated"
	DeploymentDeleted = "deployment.deleted"
	ServerPurged      = "server.purged"
)

// Event represents something that happened in the system.
type Event struct {
	Type    string                 `json:"type"`    // e.g. "deployment.updated"
	Payload map[string]interface{} `json:"payload"` // event-specific data
	Source  string                 `json:"source"`  // originating component, e.g. "deploy" or "monitor"
	Time    time.Time              `json:"time"`
}

// Handler is a callback that processes an event.
type Handler func(event Event)

// Bus is an in-memory publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewBus creates a new Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given event type.
// Use "*" to subscribe to all events.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish dispatches an event to all matching subscribers.
// Handlers are invoked synchronously in registration order.
// A panicking handler is recovered and logged without affecting others.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	// Collect handlers: specific + wildcard.
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers["*"]))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						"event", event.Type,
						"source", event.Source,
						"panic", r,
					)
				}
			}()
			h(event)
		}()
	}
}
