package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

// DefaultEnvAllowlist is inherited from the server environment by command tools.
var DefaultEnvAllowlist = []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "TZ"}

// CommandExecutor runs an executable with the call arguments as JSON on stdin
// and returns its stdout.
type CommandExecutor struct {
	envAllowlist []string
	waitDelay    time.Duration
}

// CommandOption configures a CommandExecutor.
type CommandOption func(*CommandExecutor)

// WithEnvAllowlist sets which server environment variables pass through.
func WithEnvAllowlist(names ...string) CommandOption {
	return func(e *CommandExecutor) {
		e.envAllowlist = names
	}
}

// NewCommandExecutor creates a command executor.
func NewCommandExecutor(opts ...CommandOption) *CommandExecutor {
	e := &CommandExecutor{envAllowlist: DefaultEnvAllowlist, waitDelay: 2 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the command.
func (e *CommandExecutor) Execute(ctx context.Context, req Request) (tool.Result, error) {
	impl := req.Descriptor.Implementation
	name := req.Descriptor.Name

	command := impl.Command
	if strings.ContainsRune(command, filepath.Separator) && !filepath.IsAbs(command) && req.Resolve != nil {
		resolved, err := req.Resolve(command)
		if err != nil {
			return tool.Result{}, failure(name, "%v", err)
		}
		command = resolved
	}

	cmd := exec.CommandContext(ctx, command, impl.Args...) // #nosec G204 -- tool store is a trust boundary
	cmd.Dir = req.Dir
	cmd.Env = e.environ(impl.Env)
	cmd.Stdin = bytes.NewReader(req.Arguments)
	cmd.WaitDelay = e.waitDelay

	stdout := newLimitedBuffer(MaxOutputBytes)
	stderr := newLimitedBuffer(MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, errors.Join(tool.ErrExecutionTimeout, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := stderr.String()
			if msg == "" {
				msg = stdout.String()
			}
			return tool.Result{}, failure(name, "exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return tool.Result{}, failure(name, "%v", err)
	}
	return tool.TextResult(stdout.String()), nil
}

func (e *CommandExecutor) environ(extra map[string]string) []string {
	env := make([]string, 0, len(e.envAllowlist)+len(extra))
	for _, k := range e.envAllowlist {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
