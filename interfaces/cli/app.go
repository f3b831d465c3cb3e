// Package cli provides the phoenix command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	phoenix "github.com/felixgeelhaar/agent-phoenix"
)

// Version information set at build time.
var (
	Version   = phoenix.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
	quiet      bool
	noColor    bool
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	opts   globalOptions
	env    func(string) string

	// logLevel is the effective level after flags, set by initLogging.
	logLevel string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		env:    os.Getenv,
	}

	app.root = &cobra.Command{
		Use:   "phoenix",
		Short: "Capability-registration supervisor for AI agent hosts",
		Long: `phoenix runs an AI agent host, watches for the capabilities it creates
(sub-agents and tool servers), registers them where the host discovers them,
and restarts the host with its conversation preserved.

It also serves a live-reloading tool registry over MCP so running hosts can
pick up new tools without a restart.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if app.opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to configuration file (default: phoenix.{yaml,yml,toml,json})")
	flags.BoolVarP(&app.opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVarP(&app.opts.quiet, "quiet", "q", false, "Only log warnings and errors")
	flags.BoolVar(&app.opts.noColor, "no-color", false, "Disable colored output")
	app.root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newRunCmd(),
		app.newHookCmd(),
		app.newHooksCmd(),
		app.newServeToolsCmd(),
		app.newToolsCmd(),
		app.newLedgerCmd(),
		app.newSchemaCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets a custom input reader.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// WithEnv replaces environment lookups.
func (a *App) WithEnv(env func(string) string) *App {
	a.env = env
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "phoenix version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
