package hostproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// ioWaitDelay bounds how long Wait blocks on stdio copies after the host exits.
const ioWaitDelay = 2 * time.Second

// SpawnError reports a host that could not be started. It matches
// capability.ErrSpawn.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

// Unwrap returns the capability sentinel and the underlying cause.
func (e *SpawnError) Unwrap() []error {
	return []error{capability.ErrSpawn, e.Err}
}

// ExitStatus describes how a host process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when killed by a signal.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
	// Err is set when waiting failed for a reason other than a nonzero exit.
	Err error
}

// Success reports a clean zero exit.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == "" && s.Err == nil
}

// Process is a running host.
type Process interface {
	// PID returns the process ID.
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Status returns the exit status. Valid after Done is closed.
	Status() ExitStatus
	// Terminate asks the process group to stop and kills it after grace.
	// It returns once the process has exited.
	Terminate(ctx context.Context, grace time.Duration) error
}

// Launcher starts host processes.
type Launcher interface {
	Launch(ctx context.Context, inv Invocation) (Process, error)
}

// ExecLauncher launches hosts as child processes in their own process group
// with inherited stdio.
type ExecLauncher struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// BaseEnv defaults to os.Environ().
	BaseEnv []string
}

// NewExecLauncher returns a launcher bound to the current process's stdio.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Launch starts inv. The process is not bound to ctx; the supervisor
// terminates it explicitly.
func (l *ExecLauncher) Launch(ctx context.Context, inv Invocation) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if inv.Command == "" {
		return nil, &SpawnError{Command: inv.Command, Err: errors.New("empty command")}
	}

	cmd := exec.Command(inv.Command, inv.Args...) // #nosec G204 -- the host command line is operator configuration
	cmd.Dir = inv.Dir
	cmd.Stdin = l.Stdin
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	base := l.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string(nil), base...), inv.Env...)
	cmd.WaitDelay = ioWaitDelay
	setupProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: inv.Command, Err: err}
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu     sync.Mutex
	status ExitStatus
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	st := ExitStatus{}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		st.Code = exitErr.ExitCode()
		st.Signal = exitSignal(exitErr.ProcessState)
	default:
		st.Code = -1
		st.Err = err
	}
	if st.Signal == "" && p.cmd.ProcessState != nil {
		st.Signal = exitSignal(p.cmd.ProcessState)
	}

	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
	close(p.done)
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Status() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *execProcess) Terminate(ctx context.Context, grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := signalGroup(p.cmd, false); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate %d: %w", p.PID(), err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if err := signalGroup(p.cmd, true); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %d: %w", p.PID(), err)
	}
	// SIGKILL cannot be ignored, so the wait below is bounded.
	<-p.done
	return nil
}
