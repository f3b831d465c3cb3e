package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

// Interpreter wraps the statekit interpreter with supervisor-specific functionality.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the supervisor state machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() supervision.State {
	return StateFromMachine(i.interp.State().Value)
}

// Transition moves to the target state.
func (i *Interpreter) Transition(to supervision.State, reason string) error {
	return i.send(TransitionPayload{ToState: to, Reason: reason})
}

// Fail moves to failed, recording err on the run.
func (i *Interpreter) Fail(err error, reason string) error {
	return i.send(TransitionPayload{ToState: supervision.StateFailed, Reason: reason, Err: err})
}

// Abort moves to completed and marks the run aborted.
func (i *Interpreter) Abort(reason string) error {
	return i.send(TransitionPayload{ToState: supervision.StateCompleted, Reason: reason, Aborted: true})
}

func (i *Interpreter) send(payload TransitionPayload) error {
	// Send ignores events the current state does not accept, so check first.
	if !i.CanTransition(payload.ToState) {
		return fmt.Errorf("%w: %s -> %s", supervision.ErrInvalidTransition, i.ctx.Run.State, payload.ToState)
	}

	i.ctx.err = nil
	i.interp.Send(statekit.Event{
		Type:    EventForTransition(payload.ToState),
		Payload: payload,
	})
	if i.ctx.err != nil {
		return i.ctx.err
	}
	if got := i.State(); got != payload.ToState {
		return fmt.Errorf("%w: machine is in %s, want %s", supervision.ErrInvalidTransition, got, payload.ToState)
	}
	return nil
}

// CanTransition checks if a transition to the target state is possible.
func (i *Interpreter) CanTransition(to supervision.State) bool {
	return i.ctx.Run.CanTransition(to)
}

// IsTerminal returns true if the interpreter is in a terminal state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Matches checks if the current state matches the given state.
func (i *Interpreter) Matches(state supervision.State) bool {
	return i.interp.Matches(statekit.StateID(state))
}
