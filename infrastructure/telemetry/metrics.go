// Package telemetry provides OpenTelemetry metrics for the phoenix supervisor,
// listener, ledger and tool server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	phoenix "github.com/felixgeelhaar/agent-phoenix"
)

// Signal outcomes.
const (
	SignalIgnored   = "ignored"
	SignalNoMarker  = "no_marker"
	SignalCreated   = "created"
	SignalAmbiguous = "ambiguous"
	SignalMalformed = "malformed"
	SignalDuplicate = "duplicate"
)

// Tool call outcomes.
const (
	ToolOK       = "ok"
	ToolNotFound = "not_found"
	ToolInvalid  = "invalid_arguments"
	ToolFailed   = "failed"
	ToolTimeout  = "timeout"
)

// MetricsProvider provides access to metrics instruments.
type MetricsProvider struct {
	meter metric.Meter

	hostLaunches  metric.Int64Counter
	restarts      metric.Int64Counter
	transitions   metric.Int64Counter
	signals       metric.Int64Counter
	registrations metric.Int64Counter
	toolCalls     metric.Int64Counter

	toolDuration metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter (default: "github.com/felixgeelhaar/agent-phoenix").
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Provider overrides the global meter provider.
	Provider metric.MeterProvider
	// Attributes are attached to every recording.
	Attributes []attribute.KeyValue
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/agent-phoenix",
		MeterVersion: phoenix.Version,
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(
			config.MeterName,
			metric.WithInstrumentationVersion(config.MeterVersion),
			metric.WithInstrumentationAttributes(config.Attributes...),
		),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&mp.hostLaunches, "phoenix.host.launches", "Number of host process launches", "{launch}"},
		{&mp.restarts, "phoenix.supervisor.restarts", "Number of host restarts after a registration", "{restart}"},
		{&mp.transitions, "phoenix.supervisor.transitions", "Number of supervisor state transitions", "{transition}"},
		{&mp.signals, "phoenix.signals", "Number of lifecycle signals received", "{signal}"},
		{&mp.registrations, "phoenix.ledger.registrations", "Number of capability registrations", "{registration}"},
		{&mp.toolCalls, "phoenix.tool.calls", "Number of tool calls", "{call}"},
	}
	for _, c := range counters {
		*c.dst, err = mp.meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return err
		}
	}

	mp.toolDuration, err = mp.meter.Float64Histogram(
		"phoenix.tool.duration",
		metric.WithDescription("Duration of tool calls"),
		metric.WithUnit("ms"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordHostLaunch records a host launch. resumed is false for the first launch of a run.
func (mp *MetricsProvider) RecordHostLaunch(ctx context.Context, resumed bool) {
	if mp.hostLaunches == nil {
		return
	}
	mp.hostLaunches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resumed", resumed)))
}

// RecordRestart records a completed host restart.
func (mp *MetricsProvider) RecordRestart(ctx context.Context, capabilityKind string) {
	if mp.restarts == nil {
		return
	}
	mp.restarts.Add(ctx, 1, metric.WithAttributes(attribute.String("capability.kind", capabilityKind)))
}

// RecordStateTransition records a supervisor state transition.
func (mp *MetricsProvider) RecordStateTransition(ctx context.Context, fromState, toState string) {
	if mp.transitions == nil {
		return
	}
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", fromState),
		attribute.String("state.to", toState),
	))
}

// RecordSignal records a lifecycle signal and how it was handled.
func (mp *MetricsProvider) RecordSignal(ctx context.Context, outcome string) {
	if mp.signals == nil {
		return
	}
	mp.signals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRegistration records a ledger registration.
func (mp *MetricsProvider) RecordRegistration(ctx context.Context, kind string, generation uint64) {
	if mp.registrations == nil {
		return
	}
	mp.registrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability.kind", kind),
		attribute.Int64("ledger.generation", int64(generation)), // #nosec G115 -- generations stay far below MaxInt64
	))
}

// RecordToolCall records a tool call and its duration.
func (mp *MetricsProvider) RecordToolCall(ctx context.Context, toolName, outcome string, duration time.Duration) {
	if mp.toolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("outcome", outcome),
	)
	mp.toolCalls.Add(ctx, 1, attrs)
	mp.toolDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordHostLaunch is a no-op.
func (NoopMetricsProvider) RecordHostLaunch(context.Context, bool) {}

// RecordRestart is a no-op.
func (NoopMetricsProvider) RecordRestart(context.Context, string) {}

// RecordStateTransition is a no-op.
func (NoopMetricsProvider) RecordStateTransition(context.Context, string, string) {}

// RecordSignal is a no-op.
func (NoopMetricsProvider) RecordSignal(context.Context, string) {}

// RecordRegistration is a no-op.
func (NoopMetricsProvider) RecordRegistration(context.Context, string, uint64) {}

// RecordToolCall is a no-op.
func (NoopMetricsProvider) RecordToolCall(context.Context, string, string, time.Duration) {}

// Metrics defines the interface for metrics recording.
type Metrics interface {
	RecordHostLaunch(ctx context.Context, resumed bool)
	RecordRestart(ctx context.Context, capabilityKind string)
	RecordStateTransition(ctx context.Context, fromState, toState string)
	RecordSignal(ctx context.Context, outcome string)
	RecordRegistration(ctx context.Context, kind string, generation uint64)
	RecordToolCall(ctx context.Context, toolName, outcome string, duration time.Duration)
}

// Ensure implementations satisfy the interface.
var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)
