// Package application wires the phoenix components into the supervisor, the
// signal listener, the capability registrar and the reloadable tool server.
package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
	"github.com/felixgeelhaar/agent-phoenix/domain/signal"
	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostconfig"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostproc"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/spool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/statemachine"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
)

// Supervisor runs the host for one task at a time and restarts it whenever a
// capability is created.
type Supervisor struct {
	host      domainconfig.HostConfig
	policy    domainconfig.SupervisorConfig
	launcher  hostproc.Launcher
	registrar *Registrar
	ledger    *ledger.Ledger
	signals   SignalSource
	metrics   telemetry.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	newToken  func() supervision.ContinuityToken
}

// SupervisorConfig contains configuration for the supervisor.
type SupervisorConfig struct {
	Host       domainconfig.HostConfig
	Supervisor domainconfig.SupervisorConfig
	Launcher   hostproc.Launcher
	Registrar  *Registrar
	Ledger     *ledger.Ledger
	Signals    SignalSource
	Metrics    telemetry.Metrics
	// Tracer spans each restart cycle. Defaults to the global provider.
	Tracer trace.Tracer
	// Now overrides the clock.
	Now func() time.Time
	// NewToken overrides continuity token generation.
	NewToken func() supervision.ContinuityToken
}

// NewSupervisor creates a supervisor.
func NewSupervisor(config SupervisorConfig) (*Supervisor, error) {
	if config.Launcher == nil {
		return nil, errors.New("launcher is required")
	}
	if config.Registrar == nil {
		return nil, errors.New("registrar is required")
	}
	if config.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if config.Signals == nil {
		return nil, errors.New("signal source is required")
	}
	if config.Supervisor.MaxRestarts < 0 {
		return nil, fmt.Errorf("max restarts must be non-negative, got %d", config.Supervisor.MaxRestarts)
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetricsProvider{}
	}
	if config.Tracer == nil {
		config.Tracer = telemetry.NewTracer(nil)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewToken == nil {
		config.NewToken = func() supervision.ContinuityToken {
			return supervision.ContinuityToken(uuid.NewString())
		}
	}
	return &Supervisor{
		host:      config.Host,
		policy:    config.Supervisor,
		launcher:  config.Launcher,
		registrar: config.Registrar,
		ledger:    config.Ledger,
		signals:   config.Signals,
		metrics:   config.Metrics,
		tracer:    config.Tracer,
		now:       config.Now,
		newToken:  config.NewToken,
	}, nil
}

// taskRun is the per-task state of the control loop.
type taskRun struct {
	run    *supervision.Run
	interp *statemachine.Interpreter
	host   hostproc.Process
}

// Run supervises task until the host finishes, the run fails, or ctx is
// cancelled. An empty task runs the host interactively. The returned run is
// always non-nil; the error is the run's failure cause.
func (s *Supervisor) Run(ctx context.Context, task string) (*supervision.Run, error) {
	run := supervision.NewRun(uuid.NewString(), task, s.policy.MaxRestarts, s.now())
	tr := &taskRun{run: run}

	machine, err := statemachine.NewSupervisorMachine()
	if err != nil {
		return run, err
	}
	mctx := statemachine.NewContext(run, func(from, to supervision.State, reason string) {
		s.metrics.RecordStateTransition(context.WithoutCancel(ctx), from.String(), to.String())
		logging.Info().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(run.ID)).
			Add(logging.Transition(from.String(), to.String())).
			Add(logging.Reason(reason)).
			Msg("state transition")
	})
	mctx.Now = s.now
	tr.interp = statemachine.NewInterpreter(machine, mctx)
	tr.interp.Start()
	defer tr.interp.Stop()

	if len(s.host.SessionArgs) > 0 {
		run.AdoptToken(s.newToken())
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(loopCtx)
	signals := make(chan signal.Signal)
	g.Go(func() error {
		return s.signals.Run(gctx, signals)
	})

	loopErr := s.loop(ctx, gctx, tr, signals)
	cancel()
	if err := g.Wait(); err != nil && loopErr == nil {
		loopErr = err
	}

	if tr.host != nil {
		s.terminate(context.WithoutCancel(ctx), tr)
	}
	if !run.State.IsTerminal() {
		// Only reachable when a bookkeeping error interrupted the loop.
		s.fail(tr, loopErr, "supervision interrupted")
	}
	return run, run.Err
}

// loop drives one task. ctx is the caller's context; gctx is also cancelled
// when the signal source fails.
func (s *Supervisor) loop(ctx, gctx context.Context, tr *taskRun, signals <-chan signal.Signal) error {
	if err := tr.interp.Transition(supervision.StateLaunching, "task received"); err != nil {
		return err
	}
	if err := s.launch(gctx, tr, false); err != nil {
		return err
	}
	if err := tr.interp.Transition(supervision.StateAwaitingSignal, "watching for signals"); err != nil {
		return err
	}

	for {
		select {
		case <-tr.host.Done():
			// The hook publishes before the host exits, so signals sent by
			// the last subagent may still be in the spool or in flight.
			pending, err := s.settle(gctx, signals)
			if err != nil {
				if ctx.Err() != nil {
					s.abort(ctx, tr, "cancelled")
					return nil
				}
				err = fmt.Errorf("signal listener stopped: %w", err)
				s.fail(tr, err, "listener failed")
				return err
			}
			restarted := false
			for _, sig := range pending {
				r, stop, err := s.handle(ctx, tr, sig)
				if stop {
					return err
				}
				restarted = restarted || r
			}
			if !restarted {
				return s.hostExited(tr)
			}

		case sig := <-signals:
			if _, stop, err := s.handle(ctx, tr, sig); stop {
				return err
			}

		case <-gctx.Done():
			if ctx.Err() != nil {
				s.abort(ctx, tr, "cancelled")
				return nil
			}
			err := fmt.Errorf("signal listener stopped: %w", context.Cause(gctx))
			s.terminate(context.WithoutCancel(ctx), tr)
			s.fail(tr, err, "listener failed")
			return err
		}
	}
}

// handle admits sig and runs the restart cycle it calls for. stop reports
// that the run has ended, with err as its failure cause.
func (s *Supervisor) handle(ctx context.Context, tr *taskRun, sig signal.Signal) (restarted, stop bool, err error) {
	restart, err := s.admit(ctx, tr, sig)
	if err != nil {
		s.terminate(context.WithoutCancel(ctx), tr)
		s.fail(tr, err, "signal rejected")
		return false, true, err
	}
	if !restart {
		return false, false, nil
	}
	// The cycle runs to completion even if ctx is cancelled meanwhile.
	if err := s.restart(context.WithoutCancel(ctx), tr, *sig.Marker); err != nil {
		return false, true, err
	}
	if ctx.Err() != nil {
		s.abort(ctx, tr, "cancelled during restart")
		return true, true, nil
	}
	if err := tr.interp.Transition(supervision.StateAwaitingSignal, "watching for signals"); err != nil {
		return true, true, err
	}
	return true, false, nil
}

// settle collects the signals published before the host exited, whether the
// listener is already forwarding them or they are still in the spool. They
// are returned in publication order.
func (s *Supervisor) settle(ctx context.Context, signals <-chan signal.Signal) ([]signal.Signal, error) {
	flushed := make(chan signal.Signal)
	done := make(chan error, 1)
	go func() {
		done <- s.signals.Flush(ctx, flushed)
	}()

	var pending []signal.Signal
	for {
		select {
		case sig := <-signals:
			pending = append(pending, sig)
		case sig := <-flushed:
			pending = append(pending, sig)
		case err := <-done:
			slices.SortStableFunc(pending, func(a, b signal.Signal) int {
				return strings.Compare(a.ID, b.ID)
			})
			return pending, err
		}
	}
}

// admit decides whether sig starts a restart cycle. It adopts the host's
// session id as the continuity token when none is known yet.
func (s *Supervisor) admit(ctx context.Context, tr *taskRun, sig signal.Signal) (bool, error) {
	if tr.run.AdoptToken(supervision.ContinuityToken(sig.SessionID)) {
		logging.Debug().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(tr.run.ID)).
			Add(logging.SignalID(sig.ID)).
			Msg("continuity token captured from signal")
	}
	if !sig.CapabilityCreated || sig.Marker == nil {
		return false, nil
	}

	key := sig.Marker.Key()
	if tr.run.HasRegistered(key.String()) {
		s.metrics.RecordSignal(ctx, telemetry.SignalDuplicate)
		logging.Info().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(tr.run.ID)).
			Add(logging.SignalID(sig.ID)).
			Add(logging.Capability(string(key.Kind), key.Name)).
			Msg("capability already registered in this task, ignoring signal")
		return false, nil
	}
	if err := tr.run.ReserveRestart(); err != nil {
		return false, err
	}
	return true, nil
}

// restart registers the capability, stops the host and relaunches it.
func (s *Supervisor) restart(ctx context.Context, tr *taskRun, m signal.Marker) (err error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.restart", trace.WithAttributes(
		attribute.String("task.id", tr.run.ID),
		attribute.String("capability.kind", string(m.Kind)),
		attribute.String("capability.name", m.Name),
		attribute.Int("supervisor.restarts", tr.run.Restarts),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := tr.interp.Transition(supervision.StateRestarting, "capability created: "+m.Key().String()); err != nil {
		return err
	}

	d, err := s.registrar.Register(ctx, m)
	if err != nil {
		s.terminate(ctx, tr)
		s.fail(tr, err, "registration failed")
		return err
	}
	tr.run.MarkRegistered(d.Key().String())
	span.AddEvent("registered", trace.WithAttributes(attribute.Int64("ledger.generation", int64(d.Generation)))) // #nosec G115 -- generations stay far below MaxInt64

	s.terminate(ctx, tr)
	span.AddEvent("host terminated")
	if err := s.launch(ctx, tr, true); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("host.pid", tr.host.PID()))
	s.metrics.RecordRestart(ctx, string(d.Kind))
	logging.Info().
		Add(logging.Component("supervisor")).
		Add(logging.TaskID(tr.run.ID)).
		Add(logging.Capability(string(d.Kind), d.Name)).
		Add(logging.Restarts(tr.run.Restarts)).
		Add(logging.PID(tr.host.PID())).
		Msg("host relaunched")
	return nil
}

// launch starts the host and moves the run to running. Spawn failures fail
// the run and are returned.
func (s *Supervisor) launch(ctx context.Context, tr *taskRun, resume bool) error {
	active, err := s.ledger.ListActive(ctx)
	if err != nil {
		s.fail(tr, fmt.Errorf("read ledger: %w", err), "ledger unavailable")
		return err
	}

	var env []string
	if s.policy.SpoolDir != "" {
		dir, err := filepath.Abs(s.policy.SpoolDir)
		if err != nil {
			dir = s.policy.SpoolDir
		}
		env = append(env, spool.EnvDir+"="+dir)
	}

	inv := hostproc.Build(s.host, hostproc.Request{
		Task:         tr.run.Task,
		Token:        tr.run.Token,
		Resume:       resume,
		AllowedTools: hostconfig.AllowedTools(s.host.AllowedTools, active),
		Env:          env,
	})
	proc, err := s.launcher.Launch(ctx, inv)
	if err != nil {
		tr.host = nil
		s.fail(tr, err, "spawn failed")
		return err
	}
	tr.host = proc
	s.metrics.RecordHostLaunch(ctx, resume)

	reason := "host spawned"
	if resume {
		reason = "host relaunched"
	}
	logging.Debug().
		Add(logging.Component("supervisor")).
		Add(logging.TaskID(tr.run.ID)).
		Add(logging.PID(proc.PID())).
		Add(logging.Str("invocation", inv.String())).
		Msg("host launched")
	return tr.interp.Transition(supervision.StateRunning, reason)
}

func (s *Supervisor) hostExited(tr *taskRun) error {
	st := tr.host.Status()
	tr.host = nil
	if st.Success() {
		return tr.interp.Transition(supervision.StateCompleted, "host exited")
	}
	var err error = &supervision.HostExitError{Code: st.Code, Signal: st.Signal}
	if st.Err != nil {
		err = fmt.Errorf("%w: %w", supervision.ErrHostExit, st.Err)
	}
	s.fail(tr, err, "host exited unsuccessfully")
	return err
}

// terminate stops the live host, if any, and waits for it to exit.
func (s *Supervisor) terminate(ctx context.Context, tr *taskRun) {
	if tr.host == nil {
		return
	}
	pid := tr.host.PID()
	if err := tr.host.Terminate(ctx, s.host.GracePeriod.Duration()); err != nil {
		logging.Warn().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(tr.run.ID)).
			Add(logging.PID(pid)).
			Add(logging.ErrorField(err)).
			Msg("host termination failed")
	}
	tr.host = nil
}

func (s *Supervisor) abort(ctx context.Context, tr *taskRun, reason string) {
	s.terminate(context.WithoutCancel(ctx), tr)
	if err := tr.interp.Abort(reason); err != nil {
		logging.Warn().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(tr.run.ID)).
			Add(logging.ErrorField(err)).
			Msg("abort transition failed")
	}
}

func (s *Supervisor) fail(tr *taskRun, err error, reason string) {
	if err == nil {
		err = errors.New(reason)
	}
	if tr.run.State.IsTerminal() {
		return
	}
	if terr := tr.interp.Fail(err, reason); terr != nil {
		logging.Warn().
			Add(logging.Component("supervisor")).
			Add(logging.TaskID(tr.run.ID)).
			Add(logging.ErrorField(terr)).
			Msg("failure transition failed")
		return
	}
	logging.Error().
		Add(logging.Component("supervisor")).
		Add(logging.TaskID(tr.run.ID)).
		Add(logging.ErrorField(err)).
		Msg("task failed")
}
