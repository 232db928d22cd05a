package statemachine

import (
	"errors"
	"fmt"
)

// NoTransitionError reports an event that has no row for the current state.
type NoTransitionError struct {
	State string
	Event string
}

// Error describes the rejected state and event.
func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.State, e.Event)
}

// DuplicateTransitionError reports a second row for the same state and event.
type DuplicateTransitionError struct {
	State string
	Event string
}

// Error names the duplicated transition.
func (e *DuplicateTransitionError) Error() string {
	return fmt.Sprintf("duplicate transition from state '%s' for event '%s'", e.State, e.Event)
}

// IsNoTransitionError reports whether err wraps a *NoTransitionError.
func IsNoTransitionError(err error) bool {
	var e *NoTransitionError
	return errors.As(err, &e)
}

func name(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
