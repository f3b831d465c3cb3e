//go:build unix

package hostproc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/hostproc"
)

func shLauncher(out *bytes.Buffer) *hostproc.ExecLauncher {
	return &hostproc.ExecLauncher{Stdout: out, Stderr: out, BaseEnv: []string{"PATH=/usr/bin:/bin"}}
}

func TestExecLauncher_ExitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		script  string
		code    int
		success bool
	}{
		{"clean exit", "exit 0", 0, true},
		{"failure", "exit 3", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			p, err := shLauncher(&out).Launch(context.Background(), hostproc.Invocation{
				Command: "/bin/sh", Args: []string{"-c", tt.script},
			})
			if err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			select {
			case <-p.Done():
			case <-time.After(10 * time.Second):
				t.Fatal("process did not exit")
			}
			st := p.Status()
			if st.Code != tt.code || st.Success() != tt.success {
				t.Errorf("Status() = %+v", st)
			}
		})
	}
}

func TestExecLauncher_EnvAndDir(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	dir := t.TempDir()
	p, err := shLauncher(&out).Launch(context.Background(), hostproc.Invocation{
		Command: "/bin/sh",
		Args:    []string{"-c", `printf '%s|%s' "$PHOENIX_SPOOL_DIR" "$(pwd -P)"`},
		Env:     []string{"PHOENIX_SPOOL_DIR=/tmp/spool"},
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	<-p.Done()
	if got := out.String(); len(got) < len("/tmp/spool|") || got[:len("/tmp/spool|")] != "/tmp/spool|" {
		t.Errorf("output = %q", got)
	}
}

func TestExecLauncher_SpawnError(t *testing.T) {
	t.Parallel()

	_, err := hostproc.NewExecLauncher().Launch(context.Background(), hostproc.Invocation{
		Command: "/nonexistent/phoenix-host",
	})
	var spawnErr *hostproc.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("error = %v, want SpawnError", err)
	}
	if !errors.Is(err, capability.ErrSpawn) {
		t.Error("SpawnError should match capability.ErrSpawn")
	}
}

func TestTerminate_GracefulStop(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p, err := shLauncher(&out).Launch(context.Background(), hostproc.Invocation{
		Command: "/bin/sh", Args: []string{"-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	start := time.Now()
	if err := p.Terminate(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("SIGTERM should stop sh promptly, took %v", elapsed)
	}
	if p.Status().Signal == "" {
		t.Errorf("Status() = %+v, want a terminating signal", p.Status())
	}
	// Terminating an exited process is a no-op.
	if err := p.Terminate(context.Background(), time.Second); err != nil {
		t.Errorf("second Terminate() error = %v", err)
	}
}

func TestTerminate_KillsWholeGroupAfterGrace(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	// The shell ignores SIGTERM and keeps a child in its group.
	p, err := shLauncher(&out).Launch(context.Background(), hostproc.Invocation{
		Command: "/bin/sh",
		Args:    []string{"-c", fmt.Sprintf(`trap '' TERM; sleep 30 & echo $! > %s; wait`, pidFile)},
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	child := waitForPID(t, pidFile)
	pgid, err := syscall.Getpgid(p.PID())
	if err != nil {
		t.Fatalf("Getpgid() error = %v", err)
	}
	if pgid != p.PID() {
		t.Fatalf("host should lead its own process group: pgid %d, pid %d", pgid, p.PID())
	}

	grace := 200 * time.Millisecond
	start := time.Now()
	if err := p.Terminate(context.Background(), grace); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < grace {
		t.Errorf("Terminate returned after %v, before the grace period", elapsed)
	}
	if p.Status().Signal != syscall.SIGKILL.String() {
		t.Errorf("Status() = %+v, want killed", p.Status())
	}

	deadline := time.Now().Add(5 * time.Second)
	for processAlive(child) {
		if time.Now().After(deadline) {
			t.Fatalf("child %d of the host survived Terminate", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func waitForPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no pid written to %s", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// processAlive treats zombies as dead: orphans are reaped by init, not by us.
func processAlive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err == nil {
		if i := strings.LastIndexByte(string(data), ')'); i >= 0 && i+2 < len(data) {
			state := data[i+2]
			return state != 'Z' && state != 'X'
		}
		return true
	}
	if _, statErr := os.Stat("/proc/self"); statErr == nil {
		return false
	}
	return !errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}
