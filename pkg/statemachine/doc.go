// Package statemachine implements a small generic finite state machine.
//
// States and events are any comparable types, usually string-based enums.
// The table is fixed at construction:
//
//	m := statemachine.MustNew[State, Event](Stopped,
//	    statemachine.WithTransitions(
//	        statemachine.Transition[State, Event]{From: Stopped, Event: Start, To: Starting},
//	        statemachine.Transition[State, Event]{From: Starting, Event: Synced, To: Initialized},
//	    ),
//	    statemachine.WithHook(func(from, to State, ev Event) {
//	        log.Debug("state changed", "from", from, "to", to, "event", ev)
//	    }),
//	)
//	next, err := m.Fire(Start)
//
// Fire on an event without a row leaves the state unchanged and returns
// *NoTransitionError.
package statemachine
