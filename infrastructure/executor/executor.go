// Package executor runs tool implementations. Each implementation type has
// its own isolation boundary, documented on its executor.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

// MaxOutputBytes caps captured stdout and stderr per execution.
const MaxOutputBytes = 1 << 20

// Request is one tool execution.
type Request struct {
	Descriptor tool.Descriptor
	Arguments  json.RawMessage

	// Dir is the tool store root; relative implementation paths resolve here.
	Dir string

	// Resolve maps a store-relative path to an absolute one.
	Resolve func(rel string) (string, error)
}

// Executor runs one implementation type.
type Executor interface {
	Execute(ctx context.Context, req Request) (tool.Result, error)
}

// Dispatcher routes requests to the executor registered for their type.
type Dispatcher struct {
	executors map[tool.ImplementationType]Executor
}

// NewDispatcher creates a dispatcher. Use Register to add executors.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{executors: make(map[tool.ImplementationType]Executor)}
}

// Register adds or replaces the executor for typ.
func (d *Dispatcher) Register(typ tool.ImplementationType, e Executor) *Dispatcher {
	d.executors[typ] = e
	return d
}

// Execute runs the request with the matching executor.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (tool.Result, error) {
	e, ok := d.executors[req.Descriptor.Implementation.Type]
	if !ok {
		return tool.Result{}, fmt.Errorf("%w: %q", tool.ErrUnknownImplementation, req.Descriptor.Implementation.Type)
	}
	return e.Execute(ctx, req)
}

// limitedBuffer keeps at most max bytes and silently drops the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	s := string(bytes.TrimRight(b.buf.Bytes(), "\n"))
	if b.truncated {
		s += "\n[output truncated]"
	}
	return s
}

func failure(name string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", tool.ErrToolExecution, name, fmt.Sprintf(format, args...))
}
