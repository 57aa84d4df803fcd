package workflow

import "context"

// StateMachine tracks the current state of one upload and validates transitions.
// It is not safe for concurrent use; callers serialize access.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger or returns ErrInvalidTransition
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers allowed in the current state
	PermittedTriggers() []Trigger
}
