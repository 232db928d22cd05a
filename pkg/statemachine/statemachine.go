package statemachine

import (
	"sync"
)

// Hook observes a committed transition. Hooks run while the machine lock is
// held and must not call back into the machine.
type Hook[S, E comparable] func(from, to S, event E)

// Transition is one row of the transition table.
type Transition[S, E comparable] struct {
	From  S
	Event E
	To    S
}

// Machine is a thread-safe finite state machine driven by a static
// transition table. Lookups are [from][event] -> to.
type Machine[S, E comparable] struct {
	mu      sync.RWMutex
	initial S
	current S
	table   map[S]map[E]S
	hooks   []Hook[S, E]
}

func (m *Machine[S, E]) add(t Transition[S, E]) error {
	row, ok := m.table[t.From]
	if !ok {
		row = make(map[E]S)
		m.table[t.From] = row
	}
	if _, dup := row[t.Event]; dup {
		return &DuplicateTransitionError{State: name(t.From), Event: name(t.Event)}
	}
	row[t.Event] = t.To
	return nil
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the current state is one of states.
func (m *Machine[S, E]) Is(states ...S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range states {
		if m.current == s {
			return true
		}
	}
	return false
}

// CanFire reports whether event has a transition from the current state.
func (m *Machine[S, E]) CanFire(event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.table[m.current][event]
	return ok
}

// Fire applies event and returns the new state. When no transition exists
// the state is unchanged and a *NoTransitionError is returned.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, ok := m.table[m.current][event]
	if !ok {
		return m.current, &NoTransitionError{State: name(m.current), Event: name(event)}
	}

	from := m.current
	m.current = to
	for _, h := range m.hooks {
		h(from, to, event)
	}
	return to, nil
}

// Reset moves the machine back to its initial state without running hooks.
func (m *Machine[S, E]) Reset() {
	m.mu.Lock()
	m.current = m.initial
	m.mu.Unlock()
}
