package supervision

import (
	"errors"
	"fmt"
)

// Domain errors for supervision.
var (
	// ErrRunawayRestart indicates more capability-creation signals than the
	// restart limit allows within one task. Usually an infinite creation loop.
	ErrRunawayRestart = errors.New("runaway restart limit reached")

	// ErrGenerationNotAdvanced indicates a registration did not advance the
	// ledger generation by exactly one.
	ErrGenerationNotAdvanced = errors.New("ledger generation did not advance")

	// ErrHostExit indicates the host exited unsuccessfully.
	ErrHostExit = errors.New("host exited unsuccessfully")

	// ErrInvalidTransition indicates an attempted state transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRunTerminated indicates an operation on a finished run.
	ErrRunTerminated = errors.New("run already terminated")
)

// HostExitError describes an unsuccessful host exit.
type HostExitError struct {
	Code   int
	Signal string
}

func (e *HostExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("%s: killed by %s", ErrHostExit, e.Signal)
	}
	return fmt.Sprintf("%s: exit status %d", ErrHostExit, e.Code)
}

// Unwrap returns ErrHostExit.
func (e *HostExitError) Unwrap() error {
	return ErrHostExit
}
