// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Action outcomes reported to ActionMetrics.
const (
	OutcomeFulfilled = "fulfilled"
	OutcomeRejected  = "rejected"
)

// ActionMetrics records controller activity.
type ActionMetrics interface {
	// ActionStarted is called when an invocation begins.
	ActionStarted(model, action string)

	// ActionFinished is called when an invocation settles.
	ActionFinished(model, action, outcome string, duration time.Duration)

	// ActionDropped is called when a duplicate invocation is dropped.
	ActionDropped(model, action string)

	// ValidationFailed is called for every rule a validator reports invalid.
	ValidationFailed(field, rule string)
}
