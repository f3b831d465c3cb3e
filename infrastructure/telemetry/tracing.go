package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	phoenix "github.com/felixgeelhaar/agent-phoenix"
	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
)

// TracerName names the phoenix instrumentation scope.
const TracerName = "github.com/felixgeelhaar/agent-phoenix"

// NewTracer returns the phoenix tracer from provider, or from the global
// provider when provider is nil.
func NewTracer(provider trace.TracerProvider) trace.Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return provider.Tracer(TracerName, trace.WithInstrumentationVersion(phoenix.Version))
}

// NewTracerProvider creates an SDK tracer provider that hands every ended
// span to exporter synchronously.
func NewTracerProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("phoenix"),
		semconv.ServiceVersion(phoenix.Version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
}

// LogExporter writes ended spans as debug log lines.
type LogExporter struct{}

// ExportSpans implements sdktrace.SpanExporter.
func (LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		ev := logging.Debug().
			Add(logging.Component("trace")).
			Add(logging.Str("span", s.Name())).
			Add(logging.Str("trace_id", s.SpanContext().TraceID().String())).
			Add(logging.Duration(s.EndTime().Sub(s.StartTime())))
		if st := s.Status(); st.Code == codes.Error {
			ev = ev.Add(logging.Str("status", st.Description))
		}
		for _, kv := range s.Attributes() {
			ev = ev.Add(logging.Str(string(kv.Key), kv.Value.Emit()))
		}
		ev.Msg("span ended")
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (LogExporter) Shutdown(context.Context) error { return nil }

// TracingExecutor starts a span around each tool execution.
type TracingExecutor struct {
	next   executor.Executor
	tracer trace.Tracer
}

// TraceExecutor wraps next. A nil tracer uses the global provider.
func TraceExecutor(next executor.Executor, tracer trace.Tracer) *TracingExecutor {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	return &TracingExecutor{next: next, tracer: tracer}
}

// Execute implements executor.Executor.
func (e *TracingExecutor) Execute(ctx context.Context, req executor.Request) (tool.Result, error) {
	d := req.Descriptor
	ann := d.Metadata.Annotations
	ctx, span := e.tracer.Start(ctx, "tool."+d.Name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tool.name", d.Name),
			attribute.String("tool.implementation", string(d.Implementation.Type)),
			attribute.Bool("tool.read_only", ann.ReadOnly),
			attribute.Bool("tool.idempotent", ann.Idempotent),
			attribute.Bool("tool.destructive", ann.Destructive),
			attribute.Int("tool.arguments_bytes", len(req.Arguments)),
		),
	)
	defer span.End()

	result, err := e.next.Execute(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.IsError:
		span.SetStatus(codes.Error, result.Text())
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Bool("tool.is_error", err != nil || result.IsError))
	return result, err
}

var _ executor.Executor = (*TracingExecutor)(nil)
