// Package supervision provides the domain model of a supervised host task.
package supervision

// State is a supervisor lifecycle state.
type State string

// Supervisor states.
const (
	StateIdle           State = "idle"            // No host yet
	StateLaunching      State = "launching"       // Spawning the host
	StateRunning        State = "running"         // Host process live
	StateAwaitingSignal State = "awaiting_signal" // Waiting on exit, signal or cancellation
	StateRestarting     State = "restarting"      // Registering a capability and relaunching
	StateCompleted      State = "completed"       // Terminal success or abort
	StateFailed         State = "failed"          // Terminal failure
)

// IsTerminal returns true for completed and failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsValid returns true if the state is a recognized supervisor state.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateLaunching, StateRunning, StateAwaitingSignal,
		StateRestarting, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// HostLive reports whether a host process may be live in this state.
func (s State) HostLive() bool {
	switch s {
	case StateRunning, StateAwaitingSignal, StateRestarting:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// AllStates returns every supervisor state.
func AllStates() []State {
	return []State{
		StateIdle,
		StateLaunching,
		StateRunning,
		StateAwaitingSignal,
		StateRestarting,
		StateCompleted,
		StateFailed,
	}
}
