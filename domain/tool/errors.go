package tool

import "errors"

// Domain errors for the tool system.
var (
	// ErrToolNotFound indicates the requested tool is not in the store.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecution indicates a tool implementation failed.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrInvalidArguments indicates call arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrInvalidDescriptor indicates a descriptor is not well formed.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")

	// ErrUnknownImplementation indicates no executor handles the implementation type.
	ErrUnknownImplementation = errors.New("unknown implementation type")

	// ErrExecutionTimeout indicates the tool execution timed out.
	ErrExecutionTimeout = errors.New("tool execution timed out")
)
