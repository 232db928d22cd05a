package statemachine

import (
	"fmt"
)

// Option configures a machine during construction.
type Option[S, E comparable] func(*Machine[S, E]) error

// New creates a machine in the initial state.
func New[S, E comparable](initial S, opts ...Option[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{
		initial: initial,
		current: initial,
		table:   make(map[S]map[E]S),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on a malformed table.
func MustNew[S, E comparable](initial S, opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return m
}

// WithTransition adds a single table row.
func WithTransition[S, E comparable](from S, event E, to S) Option[S, E] {
	return func(m *Machine[S, E]) error {
		return m.add(Transition[S, E]{From: from, Event: event, To: to})
	}
}

// WithTransitions adds several table rows.
func WithTransitions[S, E comparable](ts ...Transition[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		for i, t := range ts {
			if err := m.add(t); err != nil {
				return fmt.Errorf("transition[%d]: %w", i, err)
			}
		}
		return nil
	}
}

// WithHook registers a hook called after every committed transition.
func WithHook[S, E comparable](h Hook[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
		return nil
	}
}
