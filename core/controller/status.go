package controller

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Status states.
const (
	StateIdle      = "idle"
	StatePending   = "pending"
	StateFulfilled = "fulfilled"
	StateRejected  = "rejected"
)

const (
	eventStart   = "start"
	eventFulfill = "fulfill"
	eventReject  = "reject"
)

// Status tracks one action invocation.
type Status struct {
	// ID identifies the invocation.
	ID string

	// Model is the name of the model the action ran on.
	Model string

	// Action is the invoked action name.
	Action string

	// StartedAt is when the invocation began.
	StartedAt time.Time

	machine *fsm.FSM
	done    chan struct{}

	mu        sync.RWMutex
	settledAt time.Time
	result    any
	err       error
}

func newStatus(id, model, action string, startedAt time.Time) *Status {
	return &Status{
		ID:        id,
		Model:     model,
		Action:    action,
		StartedAt: startedAt,
		done:      make(chan struct{}),
		machine: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventStart, Src: []string{StateIdle}, Dst: StatePending},
				{Name: eventFulfill, Src: []string{StatePending}, Dst: StateFulfilled},
				{Name: eventReject, Src: []string{StatePending}, Dst: StateRejected},
			},
			fsm.Callbacks{},
		),
	}
}

// State returns the current state.
func (s *Status) State() string {
	return s.machine.Current()
}

// Loading reports whether the invocation is still pending.
func (s *Status) Loading() bool {
	return s.machine.Is(StatePending)
}

// Settled reports whether the invocation was fulfilled or rejected.
func (s *Status) Settled() bool {
	state := s.State()
	return state == StateFulfilled || state == StateRejected
}

// SettledAt returns when the invocation settled, or the zero time.
func (s *Status) SettledAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settledAt
}

// Result returns the outcome of a settled invocation.
func (s *Status) Result() (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.err
}

// Done is closed once the invocation settled and its events were delivered.
func (s *Status) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the invocation is done or ctx ends.
func (s *Status) Wait(ctx context.Context) (any, error) {
	select {
	case <-s.done:
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transitions run detached from the caller's context so an invocation still
// settles after its deadline passed.
func (s *Status) start() error {
	return s.machine.Event(context.Background(), eventStart)
}

func (s *Status) settle(result any, err error, at time.Time) error {
	s.mu.Lock()
	s.result = result
	s.err = err
	s.settledAt = at
	s.mu.Unlock()

	if err != nil {
		return s.machine.Event(context.Background(), eventReject)
	}
	return s.machine.Event(context.Background(), eventFulfill)
}

func (s *Status) finish() {
	close(s.done)
}
