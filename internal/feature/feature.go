// Package feature drives effectors: periodic tasks that keep foreign fields at
// configured values while enabled and put them back when disabled.
package feature

import (
	"context"
	"time"

	"github.com/udisondev/memsync/internal/mem"
)

// State is the effector lifecycle state.
type State int

const (
	// StateDisabled: the user has the feature off, or a session boundary forced it off.
	StateDisabled State = iota
	// StateUnresolved: enabled, pointer chain not (yet) valid.
	StateUnresolved
	// StateActive: chain resolved, targets applied.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateUnresolved:
		return "unresolved"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// TickInput is what the scheduler hands a feature each tick.
type TickInput struct {
	Root mem.Address // current root pointer; 0 when it could not be read
	At   time.Time
}

// TickResult summarises one tick. Err is informational; ticks never fail.
type TickResult struct {
	State    State
	Writes   int // physical writes applying targets
	Restored int // physical writes restoring neutral values
	Err      error
}

// Feature is anything the Scheduler can drive.
type Feature interface {
	Name() string
	Delay() time.Duration
	TryApply(ctx context.Context, in TickInput) TickResult
	OnSessionReset()
}

// InputSource produces the tick input for one feature.
type InputSource func(ctx context.Context) (TickInput, error)
