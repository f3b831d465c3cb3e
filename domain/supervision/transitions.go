package supervision

import "slices"

// TransitionRules maps states to the states they can transition to.
type TransitionRules map[State][]State

// Transitions holds the allowed supervisor transitions. It is immutable once
// built and safe for concurrent reads.
type Transitions struct {
	rules TransitionRules
}

// NewTransitions copies rules into a Transitions table.
func NewTransitions(rules TransitionRules) *Transitions {
	t := &Transitions{rules: make(TransitionRules, len(rules))}
	for from, to := range rules {
		t.rules[from] = slices.Clone(to)
	}
	return t
}

// DefaultTransitions returns the supervisor lifecycle:
//
//	idle → launching → running → awaiting_signal → restarting → running → …
//	                                    ↓
//	                                completed
//
// Every non-terminal state can fail. Completion is reachable from any state
// that may own a live host, because a cancelled task ends completed/aborted.
func DefaultTransitions() *Transitions {
	return NewTransitions(TransitionRules{
		StateIdle:           {StateLaunching, StateFailed},
		StateLaunching:      {StateRunning, StateCompleted, StateFailed},
		StateRunning:        {StateAwaitingSignal, StateCompleted, StateFailed},
		StateAwaitingSignal: {StateRestarting, StateCompleted, StateFailed},
		StateRestarting:     {StateRunning, StateCompleted, StateFailed},
	})
}

// CanTransition checks if a transition is allowed.
func (t *Transitions) CanTransition(from, to State) bool {
	return slices.Contains(t.rules[from], to)
}

// AllowedTransitions returns all states reachable from the given state.
func (t *Transitions) AllowedTransitions(from State) []State {
	return slices.Clone(t.rules[from])
}
