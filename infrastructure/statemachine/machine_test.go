package statemachine

import (
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

type recorded struct {
	from, to supervision.State
	reason   string
}

func newInterpreter(t *testing.T, maxRestarts int) (*Interpreter, *[]recorded) {
	t.Helper()

	machine, err := NewSupervisorMachine()
	if err != nil {
		t.Fatalf("NewSupervisorMachine() error = %v", err)
	}
	run := supervision.NewRun("test-run", "test task", maxRestarts, time.Unix(0, 0))
	var log []recorded
	ctx := NewContext(run, func(from, to supervision.State, reason string) {
		log = append(log, recorded{from, to, reason})
	})
	ctx.Now = func() time.Time { return time.Unix(60, 0) }

	interp := NewInterpreter(machine, ctx)
	interp.Start()
	return interp, &log
}

func TestInterpreter_Start(t *testing.T) {
	t.Parallel()

	interp, _ := newInterpreter(t, 3)
	if interp.State() != supervision.StateIdle {
		t.Errorf("Initial state = %s, want idle", interp.State())
	}
	if interp.IsTerminal() {
		t.Error("Should not be in terminal state after start")
	}
	if !interp.Matches(supervision.StateIdle) {
		t.Error("Matches(idle) should be true")
	}
}

func TestInterpreter_RestartCycle(t *testing.T) {
	t.Parallel()

	interp, log := newInterpreter(t, 3)
	steps := []supervision.State{
		supervision.StateLaunching,
		supervision.StateRunning,
		supervision.StateAwaitingSignal,
		supervision.StateRestarting,
		supervision.StateRunning,
		supervision.StateAwaitingSignal,
		supervision.StateCompleted,
	}
	for _, s := range steps {
		if err := interp.Transition(s, "step"); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
		if interp.State() != s {
			t.Fatalf("State = %s, want %s", interp.State(), s)
		}
		if interp.Context().Run.State != s {
			t.Fatalf("Run.State = %s, want %s", interp.Context().Run.State, s)
		}
	}

	if !interp.IsTerminal() {
		t.Error("completed should be terminal")
	}
	if len(*log) != len(steps) {
		t.Fatalf("hook saw %d transitions, want %d", len(*log), len(steps))
	}
	if first := (*log)[0]; first.from != supervision.StateIdle || first.to != supervision.StateLaunching {
		t.Errorf("first transition = %+v", first)
	}
	if got := interp.Context().Run.EndedAt; !got.Equal(time.Unix(60, 0)) {
		t.Errorf("EndedAt = %v", got)
	}
}

func TestInterpreter_InvalidTransition(t *testing.T) {
	t.Parallel()

	interp, log := newInterpreter(t, 3)
	err := interp.Transition(supervision.StateRestarting, "too early")
	if !errors.Is(err, supervision.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if interp.State() != supervision.StateIdle {
		t.Errorf("State = %s, want idle", interp.State())
	}
	if len(*log) != 0 {
		t.Errorf("hook called for rejected transition: %v", *log)
	}
}

func TestInterpreter_Fail(t *testing.T) {
	t.Parallel()

	interp, _ := newInterpreter(t, 3)
	_ = interp.Transition(supervision.StateLaunching, "launch")

	cause := errors.New("exec: not found")
	if err := interp.Fail(cause, "spawn failed"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	run := interp.Context().Run
	if run.State != supervision.StateFailed || !errors.Is(run.Err, cause) {
		t.Errorf("run = %+v", run)
	}
	if err := interp.Transition(supervision.StateLaunching, "again"); !errors.Is(err, supervision.ErrInvalidTransition) {
		t.Errorf("transition out of failed error = %v", err)
	}
}

func TestInterpreter_Abort(t *testing.T) {
	t.Parallel()

	interp, log := newInterpreter(t, 3)
	for _, s := range []supervision.State{supervision.StateLaunching, supervision.StateRunning, supervision.StateAwaitingSignal, supervision.StateRestarting} {
		if err := interp.Transition(s, ""); err != nil {
			t.Fatalf("Transition(%s) error = %v", s, err)
		}
	}
	if err := interp.Abort("cancelled"); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	run := interp.Context().Run
	if run.State != supervision.StateCompleted || !run.Aborted {
		t.Errorf("run = %+v", run)
	}
	last := (*log)[len(*log)-1]
	if last.reason != "cancelled" || last.from != supervision.StateRestarting {
		t.Errorf("last transition = %+v", last)
	}
}

func TestEventForTransition(t *testing.T) {
	t.Parallel()

	for _, s := range supervision.AllStates() {
		if s == supervision.StateIdle {
			continue
		}
		if got := stateFromEventType(EventForTransition(s)); got != s {
			t.Errorf("round trip of %s = %s", s, got)
		}
	}
	if EventForTransition("custom") != "custom" {
		t.Error("unknown state should map to itself")
	}
}
