package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostconfig"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/spool"
)

// defaultHookCommand is what the host runs on every SubagentStop event.
const defaultHookCommand = "phoenix hook"

// maxHookPayload bounds the payload read from stdin.
const maxHookPayload = 4 << 20

// newHookCmd creates the hook command run by the host.
func (a *App) newHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook",
		Short: "Publish a host SubagentStop event (run by the host)",
		Long: `Read a SubagentStop hook payload from stdin and hand it to the supervisor.

The payload is written to the signal spool named by $PHOENIX_SPOOL_DIR, which
the supervisor exports to the host. Outside a supervised host the spool from
the configuration is used. Install the hook with "phoenix hooks install".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.publishHook(cmd.Context())
		},
	}
}

// publishHook writes stdin to the spool.
func (a *App) publishHook(ctx context.Context) error {
	dir := a.env(spool.EnvDir)
	if dir == "" {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Supervisor.SpoolDir
	}

	data, err := io.ReadAll(io.LimitReader(a.stdin, maxHookPayload))
	if err != nil {
		return fmt.Errorf("failed to read hook payload: %w", err)
	}
	id, err := spool.New(dir).Publish(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to publish hook payload: %w", err)
	}
	logging.Debug().
		Add(logging.Component("hook")).
		Add(logging.SignalID(id)).
		Add(logging.Path(dir)).
		Msg("signal published")
	return nil
}

// hooksInstallOptions holds options for the hooks install command.
type hooksInstallOptions struct {
	command string
}

// newHooksCmd creates the hooks command group.
func (a *App) newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage host hook settings",
	}

	opts := &hooksInstallOptions{}
	install := &cobra.Command{
		Use:   "install",
		Short: "Register phoenix as the host's SubagentStop hook",
		Long: `Add a SubagentStop command hook to the host settings file.

Existing settings and hooks are preserved. Running the command again is a
no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.installHook(opts)
		},
	}
	install.Flags().StringVar(&opts.command, "command", defaultHookCommand, "Command the host runs for the hook")

	cmd.AddCommand(install)
	return cmd
}

// installHook merges the hook into the configured settings file.
func (a *App) installHook(opts *hooksInstallOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Artifacts.SettingsFile
	changed, err := hostconfig.InstallHook(path, opts.command)
	if err != nil {
		return fmt.Errorf("failed to install hook: %w", err)
	}

	green := color.New(color.FgGreen)
	if !changed {
		_, _ = fmt.Fprintf(a.stdout, "%s hook already installed in %s\n", hostconfig.HookEvent, path)
		return nil
	}
	_, _ = green.Fprint(a.stdout, "✓ ")
	_, _ = fmt.Fprintf(a.stdout, "Installed %s hook %q in %s\n", hostconfig.HookEvent, opts.command, path)
	return nil
}
