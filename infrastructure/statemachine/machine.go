// Package statemachine provides the statekit integration for the supervisor lifecycle.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

// TransitionHook observes every applied transition.
type TransitionHook func(from, to supervision.State, reason string)

// Context carries the run through the state machine.
type Context struct {
	Run    *supervision.Run
	Now    func() time.Time
	OnEach TransitionHook
	// err holds the last error raised by an action.
	err error
}

// NewContext creates a new machine context for run.
func NewContext(run *supervision.Run, hook TransitionHook) *Context {
	return &Context{
		Run:    run,
		Now:    time.Now,
		OnEach: hook,
	}
}

// State IDs as StateID type for statekit.
const (
	stateIdle           statekit.StateID = statekit.StateID(supervision.StateIdle)
	stateLaunching      statekit.StateID = statekit.StateID(supervision.StateLaunching)
	stateRunning        statekit.StateID = statekit.StateID(supervision.StateRunning)
	stateAwaitingSignal statekit.StateID = statekit.StateID(supervision.StateAwaitingSignal)
	stateRestarting     statekit.StateID = statekit.StateID(supervision.StateRestarting)
	stateCompleted      statekit.StateID = statekit.StateID(supervision.StateCompleted)
	stateFailed         statekit.StateID = statekit.StateID(supervision.StateFailed)
)

// Event types.
const (
	EventLaunch   statekit.EventType = "LAUNCH"
	EventSpawned  statekit.EventType = "SPAWNED"
	EventAwait    statekit.EventType = "AWAIT"
	EventRestart  statekit.EventType = "RESTART"
	EventComplete statekit.EventType = "COMPLETE"
	EventFail     statekit.EventType = "FAIL"
)

// NewSupervisorMachine creates the supervisor statechart.
func NewSupervisorMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("supervisor").
		WithInitial(stateIdle).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		State(stateIdle).
			On(EventLaunch).Target(stateLaunching).Guard("canTransition").Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateLaunching).
			On(EventSpawned).Target(stateRunning).Guard("canTransition").Do("recordTransition").
			On(EventComplete).Target(stateCompleted).Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateRunning).
			On(EventAwait).Target(stateAwaitingSignal).Guard("canTransition").Do("recordTransition").
			On(EventComplete).Target(stateCompleted).Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateAwaitingSignal).
			On(EventRestart).Target(stateRestarting).Guard("canTransition").Do("recordTransition").
			On(EventComplete).Target(stateCompleted).Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateRestarting).
			On(EventSpawned).Target(stateRunning).Guard("canTransition").Do("recordTransition").
			On(EventComplete).Target(stateCompleted).Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateCompleted).
			Final().
			Done().
		State(stateFailed).
			Final().
			Done().
		Build()
}

// EventForTransition returns the event type that reaches a state.
func EventForTransition(to supervision.State) statekit.EventType {
	switch to {
	case supervision.StateLaunching:
		return EventLaunch
	case supervision.StateRunning:
		return EventSpawned
	case supervision.StateAwaitingSignal:
		return EventAwait
	case supervision.StateRestarting:
		return EventRestart
	case supervision.StateCompleted:
		return EventComplete
	case supervision.StateFailed:
		return EventFail
	default:
		return statekit.EventType(to)
	}
}

// StateFromMachine converts the machine state ID to domain State.
func StateFromMachine(stateID statekit.StateID) supervision.State {
	return supervision.State(stateID)
}
