package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-phoenix/application"
	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostconfig"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostproc"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/spool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
)

// headlessPermissionMode lets an unattended host act without prompting.
const headlessPermissionMode = "bypassPermissions"

// runOptions holds options for the run command.
type runOptions struct {
	task        string
	headless    bool
	maxRestarts int
	gracePeriod time.Duration
}

// newRunCmd creates the run command.
func (a *App) newRunCmd() *cobra.Command {
	opts := &runOptions{maxRestarts: -1}

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Supervise the host for one task",
		Long: `Run the configured host for one task and supervise it.

Whenever the host reports that it created a sub-agent or tool server, phoenix
registers the capability, stops the host and relaunches it with the same
conversation so the new capability is discovered. Without a task the host
runs interactively.

Examples:
  # Supervise a task
  phoenix run "Analyze sales.csv and report column statistics"

  # Interactive session
  phoenix run

  # Unattended run with JSON logs and at most one restart
  phoenix run --headless --max-restarts 1 "Build a weather tool"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.task = args[0]
			}
			return a.runTask(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Bypass host permission prompts and log JSON")
	cmd.Flags().IntVar(&opts.maxRestarts, "max-restarts", -1, "Maximum restarts per task (overrides config)")
	cmd.Flags().DurationVar(&opts.gracePeriod, "grace-period", 0, "Host termination grace period (overrides config)")

	return cmd
}

// applyRunOverrides copies command-line overrides onto cfg.
func applyRunOverrides(cfg *domainconfig.Config, cmd *cobra.Command, opts *runOptions) error {
	if cmd.Flags().Changed("max-restarts") {
		if opts.maxRestarts < 0 {
			return fmt.Errorf("--max-restarts must not be negative")
		}
		cfg.Supervisor.MaxRestarts = opts.maxRestarts
	}
	if cmd.Flags().Changed("grace-period") {
		if opts.gracePeriod < 0 {
			return fmt.Errorf("--grace-period must not be negative")
		}
		cfg.Host.GracePeriod = domainconfig.Duration(opts.gracePeriod)
	}
	if opts.headless {
		cfg.Host.PermissionMode = headlessPermissionMode
	}
	return nil
}

// runTask wires the supervisor and supervises one task.
func (a *App) runTask(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg, cmd, opts); err != nil {
		return err
	}
	a.initLogging(cfg.Logging, opts.headless)
	m := metrics()
	tp, flushTraces := a.tracing()
	defer func() { _ = flushTraces(context.WithoutCancel(ctx)) }()

	led, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	sp := spool.New(cfg.Supervisor.SpoolDir)
	n, err := sp.Drain()
	if err != nil {
		return fmt.Errorf("failed to drain signal spool: %w", err)
	}
	if n > 0 {
		logging.Info().
			Add(logging.Component("cli")).
			Add(logging.Path(sp.Dir())).
			Add(logging.Int("discarded", n)).
			Msg("discarded stale signals")
	}

	listener, err := application.NewListener(application.ListenerConfig{
		Spool:        sp,
		CreatorKinds: cfg.Signals.CreatorKinds,
		Metrics:      m,
	})
	if err != nil {
		return err
	}
	registrar, err := application.NewRegistrar(application.RegistrarConfig{
		Ledger:    led,
		Artifacts: hostconfig.NewArtifacts(cfg.Artifacts),
		Supersede: cfg.Supervisor.OnConflict == domainconfig.OnConflictSupersede,
		Metrics:   m,
	})
	if err != nil {
		return err
	}
	supervisor, err := application.NewSupervisor(application.SupervisorConfig{
		Host:       cfg.Host,
		Supervisor: cfg.Supervisor,
		Launcher:   hostproc.NewExecLauncher(),
		Registrar:  registrar,
		Ledger:     led,
		Signals:    listener,
		Metrics:    m,
		Tracer:     telemetry.NewTracer(tp),
	})
	if err != nil {
		return err
	}

	run, err := supervisor.Run(ctx, opts.task)
	a.printRun(run)
	return err
}

// printRun writes the run summary to stderr, keeping stdout for the host.
func (a *App) printRun(run *supervision.Run) {
	if run == nil {
		return
	}
	status := color.New(color.FgGreen)
	label := "completed"
	switch {
	case run.State == supervision.StateFailed:
		status = color.New(color.FgRed)
		label = "failed"
	case run.Aborted:
		status = color.New(color.FgYellow)
		label = "aborted"
	}

	_, _ = fmt.Fprintf(a.stderr, "\nRun %s ", run.ID)
	_, _ = status.Fprintln(a.stderr, label)
	_, _ = fmt.Fprintf(a.stderr, "  Restarts: %d/%d\n", run.Restarts, run.MaxRestarts)
	for _, key := range run.Registered {
		_, _ = fmt.Fprintf(a.stderr, "  Registered: %s\n", key)
	}
}
