package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

// DefaultWasmMemory caps guest memory per module instance.
const DefaultWasmMemory = 64 * 1024 * 1024

// DefaultWasmEntrypoint is called on reactor modules when no entrypoint is set.
const DefaultWasmEntrypoint = "run"

// WasmExecutor runs WebAssembly tools under wazero. Modules never get a
// filesystem mount or host environment.
//
// Two module shapes are supported. WASI commands (exporting _start) read the
// arguments from stdin and write the result to stdout. Reactor modules export
// malloc and an entrypoint taking (ptr, len) and returning (ptr, len).
type WasmExecutor struct {
	runtime wazero.Runtime
}

// NewWasmExecutor creates a runtime limited to maxMemory bytes per instance.
func NewWasmExecutor(ctx context.Context, maxMemory uint64) (*WasmExecutor, error) {
	if maxMemory == 0 {
		maxMemory = DefaultWasmMemory
	}
	pages := uint32(maxMemory / 65536)
	if pages == 0 {
		pages = 1
	}

	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	return &WasmExecutor{runtime: rt}, nil
}

// Close releases the runtime.
func (e *WasmExecutor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Execute compiles and runs the module. Modules are compiled per call because
// the file may change between requests.
func (e *WasmExecutor) Execute(ctx context.Context, req Request) (tool.Result, error) {
	name := req.Descriptor.Name
	impl := req.Descriptor.Implementation
	if req.Resolve == nil {
		return tool.Result{}, failure(name, "wasm file %s cannot be resolved", impl.File)
	}
	path, err := req.Resolve(impl.File)
	if err != nil {
		return tool.Result{}, failure(name, "%v", err)
	}
	wasmBytes, err := os.ReadFile(path) // #nosec G304 -- resolved inside the tool store
	if err != nil {
		return tool.Result{}, failure(name, "read module: %v", err)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return tool.Result{}, failure(name, "compile module: %v", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	if _, ok := compiled.ExportedFunctions()["_start"]; ok {
		return e.runCommand(ctx, req, compiled)
	}
	return e.runReactor(ctx, req, compiled)
}

func (e *WasmExecutor) runCommand(ctx context.Context, req Request, compiled wazero.CompiledModule) (tool.Result, error) {
	name := req.Descriptor.Name
	stdout := newLimitedBuffer(MaxOutputBytes)
	stderr := newLimitedBuffer(MaxOutputBytes)

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(name).
		WithStdin(bytes.NewReader(req.Arguments)).
		WithStdout(stdout).
		WithStderr(stderr)

	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return tool.TextResult(stdout.String()), nil
		}
		if ctx.Err() != nil {
			return tool.Result{}, fmt.Errorf("%w: %s: %w", tool.ErrExecutionTimeout, name, ctx.Err())
		}
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return tool.Result{}, failure(name, "%s", msg)
	}
	return tool.TextResult(stdout.String()), nil
}

func (e *WasmExecutor) runReactor(ctx context.Context, req Request, compiled wazero.CompiledModule) (tool.Result, error) {
	name := req.Descriptor.Name
	entry := req.Descriptor.Implementation.Entrypoint
	if entry == "" {
		entry = DefaultWasmEntrypoint
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return tool.Result{}, failure(name, "instantiate module: %v", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	fn := mod.ExportedFunction(entry)
	if fn == nil {
		return tool.Result{}, failure(name, "entry point %q not exported", entry)
	}
	malloc := mod.ExportedFunction("malloc")
	memory := mod.Memory()
	if malloc == nil || memory == nil {
		return tool.Result{}, failure(name, "reactor module must export malloc and memory")
	}

	input := req.Arguments
	alloc, err := malloc.Call(ctx, uint64(len(input)))
	if err != nil || len(alloc) == 0 {
		return tool.Result{}, failure(name, "allocate input: %v", err)
	}
	ptr := alloc[0]
	if !memory.Write(uint32(ptr), input) {
		return tool.Result{}, failure(name, "write input out of range")
	}

	results, err := fn.Call(ctx, ptr, uint64(len(input)))
	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, fmt.Errorf("%w: %s: %w", tool.ErrExecutionTimeout, name, ctx.Err())
		}
		return tool.Result{}, failure(name, "%v", err)
	}
	if len(results) < 2 {
		return tool.Result{}, failure(name, "entry point must return (ptr, len)")
	}
	out, ok := memory.Read(uint32(results[0]), uint32(results[1]))
	if !ok {
		return tool.Result{}, failure(name, "read result out of range")
	}
	return tool.TextResult(string(out)), nil
}
