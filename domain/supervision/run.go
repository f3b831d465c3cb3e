package supervision

import (
	"fmt"
	"slices"
	"time"
)

// Mode is how the host receives its task.
type Mode string

const (
	// ModeTask passes the task on the first launch.
	ModeTask Mode = "task"
	// ModeInteractive starts the host without a task.
	ModeInteractive Mode = "interactive"
)

// ContinuityToken identifies the host conversation across restarts. It is
// owned by the supervisor, set at most once per task and reused unchanged on
// every relaunch.
type ContinuityToken string

// IsZero reports whether no token is known yet.
func (t ContinuityToken) IsZero() bool {
	return t == ""
}

// String returns the token value.
func (t ContinuityToken) String() string {
	return string(t)
}

// Run is the per-task supervision record and the aggregate root of this package.
type Run struct {
	ID          string          `json:"id"`
	Task        string          `json:"task,omitempty"`
	Mode        Mode            `json:"mode"`
	State       State           `json:"state"`
	Restarts    int             `json:"restarts"`
	MaxRestarts int             `json:"max_restarts"`
	Token       ContinuityToken `json:"-"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at,omitzero"`
	Aborted     bool            `json:"aborted,omitempty"`
	Err         error           `json:"-"`
	// Registered holds the capability keys registered during this run, in order.
	Registered []string `json:"registered,omitempty"`

	transitions *Transitions
}

// NewRun creates an idle run. An empty task selects interactive mode.
func NewRun(id, task string, maxRestarts int, now time.Time) *Run {
	mode := ModeTask
	if task == "" {
		mode = ModeInteractive
	}
	return &Run{
		ID:          id,
		Task:        task,
		Mode:        mode,
		State:       StateIdle,
		MaxRestarts: maxRestarts,
		StartedAt:   now,
		transitions: DefaultTransitions(),
	}
}

// TransitionTo moves the run to state, rejecting transitions the lifecycle
// does not allow.
func (r *Run) TransitionTo(to State, now time.Time) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunTerminated, r.State)
	}
	if !r.transitions.CanTransition(r.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	if to.IsTerminal() {
		r.EndedAt = now
	}
	return nil
}

// CanTransition reports whether the run may move to state.
func (r *Run) CanTransition(to State) bool {
	return !r.State.IsTerminal() && r.transitions.CanTransition(r.State, to)
}

// ReserveRestart claims one restart. It fails with ErrRunawayRestart once the
// limit is exhausted, leaving the counter unchanged.
func (r *Run) ReserveRestart() error {
	if r.Restarts >= r.MaxRestarts {
		return fmt.Errorf("%w: %d restarts already performed (limit %d); the host may be stuck in a capability-creation loop",
			ErrRunawayRestart, r.Restarts, r.MaxRestarts)
	}
	r.Restarts++
	return nil
}

// HasRegistered reports whether key was registered during this run.
func (r *Run) HasRegistered(key string) bool {
	return slices.Contains(r.Registered, key)
}

// MarkRegistered records key as registered during this run.
func (r *Run) MarkRegistered(key string) {
	if !r.HasRegistered(key) {
		r.Registered = append(r.Registered, key)
	}
}

// AdoptToken sets the continuity token if none is known. It reports whether
// the token was taken.
func (r *Run) AdoptToken(token ContinuityToken) bool {
	if !r.Token.IsZero() || token.IsZero() {
		return false
	}
	r.Token = token
	return true
}

// Complete ends the run successfully.
func (r *Run) Complete(now time.Time) error {
	return r.TransitionTo(StateCompleted, now)
}

// Abort ends the run as completed and aborted.
func (r *Run) Abort(now time.Time) error {
	if err := r.TransitionTo(StateCompleted, now); err != nil {
		return err
	}
	r.Aborted = true
	return nil
}

// Fail ends the run with err. It returns the transition error when the run
// has already ended.
func (r *Run) Fail(err error, now time.Time) error {
	if terr := r.TransitionTo(StateFailed, now); terr != nil {
		return terr
	}
	r.Err = err
	return nil
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration(now time.Time) time.Duration {
	if !r.EndedAt.IsZero() {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}
