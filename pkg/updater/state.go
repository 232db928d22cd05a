package updater

import (
	"log/slog"

	"github.com/dmitrymomot/flagsync/pkg/logger"
	"github.com/dmitrymomot/flagsync/pkg/statemachine"
)

// State is the connection state of a Processor.
type State string

const (
	StateStopped      State = "STOPPED"
	StateStarting     State = "STARTING"
	StateInitialized  State = "INITIALIZED"
	StateReconnecting State = "RECONNECTING"
)

type trigger string

const (
	triggerStart  trigger = "start"
	triggerSynced trigger = "synced"
	triggerRetry  trigger = "retry"
	triggerStop   trigger = "stop"
)

func newStateMachine(log *slog.Logger) *statemachine.Machine[State, trigger] {
	type row = statemachine.Transition[State, trigger]
	return statemachine.MustNew(StateStopped,
		statemachine.WithTransitions(
			row{From: StateStopped, Event: triggerStart, To: StateStarting},

			row{From: StateStarting, Event: triggerSynced, To: StateInitialized},
			row{From: StateInitialized, Event: triggerSynced, To: StateInitialized},
			row{From: StateReconnecting, Event: triggerSynced, To: StateInitialized},

			row{From: StateStarting, Event: triggerRetry, To: StateReconnecting},
			row{From: StateInitialized, Event: triggerRetry, To: StateReconnecting},
			row{From: StateReconnecting, Event: triggerRetry, To: StateReconnecting},

			row{From: StateStarting, Event: triggerStop, To: StateStopped},
			row{From: StateInitialized, Event: triggerStop, To: StateStopped},
			row{From: StateReconnecting, Event: triggerStop, To: StateStopped},
		),
		statemachine.WithHook(func(from, to State, ev trigger) {
			if from == to {
				return
			}
			log.Debug("update processor state changed",
				slog.String("from", string(from)),
				logger.State(string(to)),
				slog.String("trigger", string(ev)),
			)
		}),
	)
}
