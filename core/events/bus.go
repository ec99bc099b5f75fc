// Package events provides the publish/subscribe bus controllers emit action
// outcomes on.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ActionError is published when an action fails.
const ActionError = "action-error"

// Event represents a published event.
type Event struct {
	// Name is the event name: the action name on success, ActionError on failure.
	Name string

	// Model is the name of the model the action ran on, if known.
	Model string

	// Action is the action that produced the event.
	Action string

	// Invocation identifies the action invocation.
	Invocation string

	// Result is the action result on success.
	Result any

	// Err is the action error on failure.
	Err error

	// Time is when the action settled.
	Time time.Time
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// Supported patterns:
//   - "save" - the event name
//   - "user.save" - the event name for model "user" only
//   - "user.*" - every event of model "user"
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish emits an event to all matching handlers.
// Handlers are called synchronously in registration order, exact matches
// first. Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.logger.Debug().
		Str("event", event.Name).
		Str("model", event.Model).
		Str("action", event.Action).
		Str("invocation", event.Invocation).
		Msg("event emitted")

	// Handlers may subscribe, so call them without the lock held.
	b.mu.RLock()
	var matched []Handler
	for _, pattern := range patterns(event) {
		matched = append(matched, b.handlers[pattern]...)
	}
	b.mu.RUnlock()

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Str("model", event.Model).
				Msg("event handler error")
		}
	}
}

// HasSubscribers checks if any handlers would receive event.
func (b *Bus) HasSubscribers(event Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, pattern := range patterns(event) {
		if len(b.handlers[pattern]) > 0 {
			return true
		}
	}
	return false
}

func patterns(event Event) []string {
	if event.Model == "" {
		return []string{event.Name, "*"}
	}
	return []string{
		event.Name,
		event.Model + "." + event.Name,
		event.Model + ".*",
		"*",
	}
}
