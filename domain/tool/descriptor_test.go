package tool_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
)

func validDescriptor() tool.Descriptor {
	return tool.Descriptor{
		Name:        "word_count",
		Description: "Counts words",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		Implementation: tool.Implementation{
			Type:    tool.ImplementationCommand,
			Command: "wc",
		},
	}
}

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*tool.Descriptor)
		wantErr error
	}{
		{"valid", func(*tool.Descriptor) {}, nil},
		{"bad name", func(d *tool.Descriptor) { d.Name = "word count" }, tool.ErrInvalidDescriptor},
		{"no schema", func(d *tool.Descriptor) { d.InputSchema = nil }, tool.ErrInvalidDescriptor},
		{"schema not object", func(d *tool.Descriptor) { d.InputSchema = json.RawMessage(`{"type":"string"}`) }, tool.ErrInvalidDescriptor},
		{"schema not json", func(d *tool.Descriptor) { d.InputSchema = json.RawMessage(`{`) }, tool.ErrInvalidDescriptor},
		{"unknown type", func(d *tool.Descriptor) { d.Implementation.Type = "lambda" }, tool.ErrUnknownImplementation},
		{"command missing", func(d *tool.Descriptor) { d.Implementation.Command = "" }, tool.ErrInvalidDescriptor},
		{"script missing code", func(d *tool.Descriptor) {
			d.Implementation = tool.Implementation{Type: tool.ImplementationScript}
		}, tool.ErrInvalidDescriptor},
		{"wasm missing file", func(d *tool.Descriptor) {
			d.Implementation = tool.Implementation{Type: tool.ImplementationWasm}
		}, tool.ErrInvalidDescriptor},
		{"bad timeout", func(d *tool.Descriptor) { d.Implementation.Timeout = "soon" }, tool.ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDescriptor()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestImplementation_TimeoutOr(t *testing.T) {
	t.Parallel()

	def := 30 * time.Second
	if got := (tool.Implementation{}).TimeoutOr(def); got != def {
		t.Errorf("TimeoutOr() = %v, want %v", got, def)
	}
	if got := (tool.Implementation{Timeout: "2s"}).TimeoutOr(def); got != 2*time.Second {
		t.Errorf("TimeoutOr() = %v, want 2s", got)
	}
	if got := (tool.Implementation{Timeout: "-1s"}).TimeoutOr(def); got != def {
		t.Errorf("TimeoutOr(negative) = %v, want %v", got, def)
	}
}

func TestResult(t *testing.T) {
	t.Parallel()

	r := tool.TextResult("hello")
	if r.IsError || r.Text() != "hello" {
		t.Errorf("TextResult() = %+v", r)
	}

	e := tool.ErrorResult(tool.ErrToolNotFound)
	if !e.IsError || !errors.Is(e.Error, tool.ErrToolNotFound) || e.Text() != "tool not found" {
		t.Errorf("ErrorResult() = %+v", e)
	}
}
