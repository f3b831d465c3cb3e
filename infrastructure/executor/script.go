package executor

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

// ScriptEntrypoint is the function a script tool must define.
const ScriptEntrypoint = "RunTool"

// DefaultScriptPackages lists the standard library packages script tools may import.
// Filesystem, process, network and unsafe packages are left out.
var DefaultScriptPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/csv",
	"encoding/hex",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"text/template",
	"time",
	"unicode",
	"unicode/utf8",
}

// ScriptExecutor interprets Go source with yaegi. The source must define
//
//	func RunTool(input string) (string, error)
//
// where input is the JSON-encoded call arguments.
type ScriptExecutor struct {
	allowed map[string]bool
	symbols interp.Exports
}

// NewScriptExecutor creates a script executor limited to packages.
// With no packages, DefaultScriptPackages is used.
func NewScriptExecutor(packages ...string) *ScriptExecutor {
	if len(packages) == 0 {
		packages = DefaultScriptPackages
	}
	e := &ScriptExecutor{allowed: make(map[string]bool, len(packages))}
	for _, p := range packages {
		e.allowed[p] = true
	}

	// stdlib.Symbols keys are "importpath/name", e.g. "encoding/json/json".
	e.symbols = make(interp.Exports)
	for key, syms := range stdlib.Symbols {
		i := strings.LastIndex(key, "/")
		if i < 0 || !e.allowed[key[:i]] {
			continue
		}
		e.symbols[key] = syms
	}
	return e
}

// Execute interprets the script and calls RunTool.
func (e *ScriptExecutor) Execute(ctx context.Context, req Request) (tool.Result, error) {
	name := req.Descriptor.Name
	code, err := e.source(req)
	if err != nil {
		return tool.Result{}, failure(name, "%v", err)
	}
	code = wrapScript(code)
	if err := e.validateImports(code); err != nil {
		return tool.Result{}, failure(name, "%v", err)
	}

	stdout := newLimitedBuffer(MaxOutputBytes)
	stderr := newLimitedBuffer(MaxOutputBytes)
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(e.symbols); err != nil {
		return tool.Result{}, failure(name, "load symbols: %v", err)
	}

	if _, err := i.EvalWithContext(ctx, code); err != nil {
		return tool.Result{}, failure(name, "evaluate: %v", err)
	}
	v, err := i.EvalWithContext(ctx, "main."+ScriptEntrypoint)
	if err != nil {
		return tool.Result{}, failure(name, "%s not defined: %v", ScriptEntrypoint, err)
	}
	fn, ok := v.Interface().(func(string) (string, error))
	if !ok {
		return tool.Result{}, failure(name, "%s has type %s, want func(string) (string, error)",
			ScriptEntrypoint, v.Type())
	}

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		out, err := fn(string(req.Arguments))
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return tool.Result{}, failure(name, "%v", o.err)
		}
		if o.out == "" {
			o.out = stdout.String()
		}
		return tool.TextResult(o.out), nil
	case <-ctx.Done():
		// The interpreted goroutine cannot be stopped; it is abandoned.
		return tool.Result{}, fmt.Errorf("%w: %s: %w", tool.ErrExecutionTimeout, name, ctx.Err())
	}
}

func (e *ScriptExecutor) source(req Request) (string, error) {
	impl := req.Descriptor.Implementation
	if impl.Code != "" {
		return impl.Code, nil
	}
	if req.Resolve == nil {
		return "", fmt.Errorf("script file %s cannot be resolved", impl.File)
	}
	path, err := req.Resolve(impl.File)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- resolved inside the tool store
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (e *ScriptExecutor) validateImports(code string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "tool.go", code, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	var forbidden []string
	for _, spec := range f.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return err
		}
		if !e.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		sort.Strings(forbidden)
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

// Allowed returns the importable packages, sorted.
func (e *ScriptExecutor) Allowed() []string {
	out := make([]string, 0, len(e.allowed))
	for p := range e.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func wrapScript(code string) string {
	f, err := parser.ParseFile(token.NewFileSet(), "tool.go", code, parser.PackageClauseOnly)
	if err == nil && f.Name != nil {
		return code
	}
	return "package main\n\n" + code
}
