package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

// testLogger returns a disabled logger for tests
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// TestNewBus verifies that NewBus creates a properly initialized Bus
func TestNewBus(t *testing.T) {
	bus := NewBus(testLogger())

	if bus == nil {
		t.Fatal("NewBus returned nil")
	}
	if bus.handlers == nil {
		t.Error("handlers map not initialized")
	}
	if len(bus.handlers) != 0 {
		t.Error("handlers map should be empty on creation")
	}
}

// TestSubscribeMultipleHandlers verifies handlers run in registration order
func TestSubscribeMultipleHandlers(t *testing.T) {
	bus := NewBus(testLogger())

	callOrder := []int{}
	for i := 1; i <= 3; i++ {
		n := i
		bus.Subscribe("save", func(ctx context.Context, event Event) error {
			callOrder = append(callOrder, n)
			return nil
		})
	}

	bus.Publish(context.Background(), Event{Name: "save"})

	if len(callOrder) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(callOrder))
	}
	for i, order := range callOrder {
		if order != i+1 {
			t.Errorf("expected call order %d at position %d, got %d", i+1, i, order)
		}
	}
}

// TestPublishExactMatch verifies the payload reaches the handler
func TestPublishExactMatch(t *testing.T) {
	bus := NewBus(testLogger())

	var received Event
	bus.Subscribe(ActionError, func(ctx context.Context, event Event) error {
		received = event
		return nil
	})

	failure := errors.New("boom")
	bus.Publish(context.Background(), Event{
		Name:   ActionError,
		Model:  "user",
		Action: "save",
		Err:    failure,
	})

	if received.Action != "save" {
		t.Errorf("expected action save, got %q", received.Action)
	}
	if received.Err != failure {
		t.Errorf("expected error %v, got %v", failure, received.Err)
	}
}

// TestPublishNoMatch verifies handler is not called for non-matching events
func TestPublishNoMatch(t *testing.T) {
	bus := NewBus(testLogger())

	called := false
	bus.Subscribe("save", func(ctx context.Context, event Event) error {
		called = true
		return nil
	})

	bus.Publish(context.Background(), Event{Name: "destroy"})

	if called {
		t.Error("handler should not be called for non-matching event")
	}
}

// TestPublishModelPatterns verifies model-qualified subscriptions
func TestPublishModelPatterns(t *testing.T) {
	bus := NewBus(testLogger())

	var qualified, wildcard []string
	bus.Subscribe("user.save", func(ctx context.Context, event Event) error {
		qualified = append(qualified, event.Model+"."+event.Name)
		return nil
	})
	bus.Subscribe("user.*", func(ctx context.Context, event Event) error {
		wildcard = append(wildcard, event.Name)
		return nil
	})

	ctx := context.Background()
	bus.Publish(ctx, Event{Name: "save", Model: "user"})
	bus.Publish(ctx, Event{Name: ActionError, Model: "user"})
	bus.Publish(ctx, Event{Name: "save", Model: "order"})
	bus.Publish(ctx, Event{Name: "save"})

	if len(qualified) != 1 || qualified[0] != "user.save" {
		t.Errorf("qualified handler saw %v", qualified)
	}
	if len(wildcard) != 2 {
		t.Errorf("wildcard handler saw %v, want 2 events", wildcard)
	}
}

// TestPublishGlobalWildcard verifies global wildcard matching ("*")
func TestPublishGlobalWildcard(t *testing.T) {
	bus := NewBus(testLogger())

	var count int32
	bus.Subscribe("*", func(ctx context.Context, event Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx := context.Background()
	bus.Publish(ctx, Event{Name: "save", Model: "user"})
	bus.Publish(ctx, Event{Name: ActionError})
	bus.Publish(ctx, Event{Name: "destroy"})

	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

// TestPublishHandlerError verifies errors are logged but publishing continues
func TestPublishHandlerError(t *testing.T) {
	bus := NewBus(testLogger())

	calls := []int{}
	bus.Subscribe("save", func(ctx context.Context, event Event) error {
		calls = append(calls, 1)
		return nil
	})
	bus.Subscribe("save", func(ctx context.Context, event Event) error {
		calls = append(calls, 2)
		return errors.New("handler error")
	})
	bus.Subscribe("*", func(ctx context.Context, event Event) error {
		calls = append(calls, 3)
		return nil
	})

	bus.Publish(context.Background(), Event{Name: "save"})

	if len(calls) != 3 {
		t.Errorf("expected 3 calls, got %d", len(calls))
	}
}

// TestSubscribeFromHandler verifies handlers can subscribe without deadlocking
func TestSubscribeFromHandler(t *testing.T) {
	bus := NewBus(testLogger())

	bus.Subscribe("save", func(ctx context.Context, event Event) error {
		bus.Subscribe("destroy", func(ctx context.Context, event Event) error { return nil })
		return nil
	})
	bus.Publish(context.Background(), Event{Name: "save"})

	if !bus.HasSubscribers(Event{Name: "destroy"}) {
		t.Error("subscription made inside a handler was lost")
	}
}

// TestPublishConcurrent verifies the bus is safe for concurrent use
func TestPublishConcurrent(t *testing.T) {
	bus := NewBus(testLogger())

	var count int32
	bus.Subscribe("save", func(ctx context.Context, event Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Name: "save"})
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("expected 50 calls, got %d", count)
	}
}

// TestHasSubscribers verifies HasSubscribers across patterns
func TestHasSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	if bus.HasSubscribers(Event{Name: "save", Model: "user"}) {
		t.Error("should have no subscribers initially")
	}

	bus.Subscribe("user.*", func(ctx context.Context, event Event) error { return nil })

	tests := []struct {
		event Event
		want  bool
	}{
		{Event{Name: "save", Model: "user"}, true},
		{Event{Name: ActionError, Model: "user"}, true},
		{Event{Name: "save", Model: "order"}, false},
		{Event{Name: "save"}, false},
	}
	for _, tt := range tests {
		if got := bus.HasSubscribers(tt.event); got != tt.want {
			t.Errorf("HasSubscribers(%+v) = %v, want %v", tt.event, got, tt.want)
		}
	}
}
