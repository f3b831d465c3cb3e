package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
)

type stubExecutor struct {
	result tool.Result
	err    error
	traced bool
}

func (e *stubExecutor) Execute(ctx context.Context, _ executor.Request) (tool.Result, error) {
	e.traced = trace.SpanContextFromContext(ctx).IsValid()
	return e.result, e.err
}

func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, provider
}

func TestTracingExecutor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     tool.Result
		err        error
		wantStatus codes.Code
		wantError  string
	}{
		{"ok", tool.TextResult("done"), nil, codes.Ok, "false"},
		{"error result", tool.ErrorResult(tool.ErrToolExecution), nil, codes.Error, "true"},
		{"executor error", tool.Result{}, errors.New("spawn failed"), codes.Error, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			recorder, provider := setupTestTracer(t)
			next := &stubExecutor{result: tt.result, err: tt.err}
			e := TraceExecutor(next, NewTracer(provider))

			_, err := e.Execute(context.Background(), executor.Request{
				Descriptor: tool.Descriptor{
					Name:           "csv-stats",
					Implementation: tool.Implementation{Type: tool.ImplementationCommand},
					Metadata:       tool.Metadata{Annotations: tool.Annotations{ReadOnly: true}},
				},
				Arguments: json.RawMessage(`{"path":"data.csv"}`),
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("Execute() error = %v, want %v", err, tt.err)
			}
			if !next.traced {
				t.Error("wrapped executor did not see the span context")
			}

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(spans))
			}
			span := spans[0]
			if span.Name() != "tool.csv-stats" {
				t.Errorf("span name = %q", span.Name())
			}
			if span.Status().Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", span.Status().Code, tt.wantStatus)
			}
			if span.InstrumentationScope().Name != TracerName {
				t.Errorf("scope = %q", span.InstrumentationScope().Name)
			}
			attrs := make(map[string]string)
			for _, kv := range span.Attributes() {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
			want := map[string]string{
				"tool.name":            "csv-stats",
				"tool.implementation":  "command",
				"tool.read_only":       "true",
				"tool.arguments_bytes": "19",
				"tool.is_error":        tt.wantError,
			}
			for k, v := range want {
				if attrs[k] != v {
					t.Errorf("%s = %q, want %q", k, attrs[k], v)
				}
			}
		})
	}
}

func TestTraceExecutor_DefaultsToGlobalProvider(t *testing.T) {
	t.Parallel()

	next := &stubExecutor{result: tool.TextResult("done")}
	res, err := TraceExecutor(next, nil).Execute(context.Background(), executor.Request{})
	if err != nil || res.Text() != "done" {
		t.Errorf("Execute() = %v, %v", res, err)
	}
}

func TestLogExporter(t *testing.T) {
	buf := &bytes.Buffer{}
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: buf})
	defer logging.Init(logging.DefaultConfig())

	provider := NewTracerProvider(LogExporter{})
	defer func() { _ = provider.Shutdown(context.Background()) }()

	_, span := NewTracer(provider).Start(context.Background(), "supervisor.restart")
	span.SetStatus(codes.Error, "registration failed")
	span.End()

	out := buf.String()
	for _, want := range []string{"span ended", "supervisor.restart", "registration failed", `"component":"trace"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q lacks %q", out, want)
		}
	}
}
