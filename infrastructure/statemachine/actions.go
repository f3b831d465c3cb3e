package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState supervision.State
	Reason  string
	// Err is recorded on the run when entering failed.
	Err error
	// Aborted marks a completion caused by cancellation.
	Aborted bool
}

// recordTransition applies the transition to the run and notifies the hook.
// Actions receive **Context because the machine context is *Context.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Run == nil {
		return
	}
	c := *ctx

	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		payload = TransitionPayload{ToState: stateFromEventType(event.Type)}
	}

	from := c.Run.State
	now := c.Now()
	var err error
	switch {
	case payload.ToState == supervision.StateFailed:
		err = c.Run.Fail(payload.Err, now)
	case payload.ToState == supervision.StateCompleted && payload.Aborted:
		err = c.Run.Abort(now)
	default:
		err = c.Run.TransitionTo(payload.ToState, now)
	}
	if err != nil {
		c.err = err
		return
	}
	if c.OnEach != nil {
		c.OnEach(from, payload.ToState, payload.Reason)
	}
}
