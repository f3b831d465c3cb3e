package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

// guardCanTransition checks the run's transition table.
// Guards receive the context by value, so they see *Context directly.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Run == nil {
		return false
	}
	toState := stateFromEventType(event.Type)
	if payload, ok := event.Payload.(TransitionPayload); ok {
		toState = payload.ToState
	}
	return ctx.Run.CanTransition(toState)
}

// stateFromEventType derives the target state from an event type. SPAWNED
// always resolves to running.
func stateFromEventType(eventType statekit.EventType) supervision.State {
	switch eventType {
	case EventLaunch:
		return supervision.StateLaunching
	case EventSpawned:
		return supervision.StateRunning
	case EventAwait:
		return supervision.StateAwaitingSignal
	case EventRestart:
		return supervision.StateRestarting
	case EventComplete:
		return supervision.StateCompleted
	case EventFail:
		return supervision.StateFailed
	default:
		return supervision.State(eventType)
	}
}
