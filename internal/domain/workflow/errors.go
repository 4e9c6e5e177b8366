package workflow

import "errors"

var (
	// ErrInvalidTransition reports a trigger the invoice's current state
	// does not permit, e.g. completing an invoice that never started
	// processing.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState reports a state value outside the invoice lifecycle
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed reports a transition whose guard condition rejected it
	ErrGuardFailed = errors.New("guard condition failed")
)
