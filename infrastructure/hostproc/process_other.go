//go:build !unix

package hostproc

import (
	"os"
	"os/exec"
)

func setupProcessGroup(*exec.Cmd) {}

// signalGroup interrupts the process, or kills it when kill is set. Process
// groups are not available, so only the host itself is signalled.
func signalGroup(cmd *exec.Cmd, kill bool) error {
	if kill {
		return cmd.Process.Kill()
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

func exitSignal(*os.ProcessState) string {
	return ""
}
