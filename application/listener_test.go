package application_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/application"
	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	"github.com/felixgeelhaar/agent-phoenix/domain/signal"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/spool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
)

// recordingMetrics captures signal and tool outcomes.
type recordingMetrics struct {
	telemetry.NoopMetricsProvider
	mu      sync.Mutex
	signals []string
	tools   []string
}

func (m *recordingMetrics) RecordSignal(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, outcome)
}

func (m *recordingMetrics) RecordToolCall(_ context.Context, _, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = append(m.tools, outcome)
}

func newListener(t *testing.T, metrics telemetry.Metrics) (*application.Listener, *spool.Spool) {
	t.Helper()
	sp := spool.New(filepath.Join(t.TempDir(), "spool"))
	l, err := application.NewListener(application.ListenerConfig{
		Spool:        sp,
		CreatorKinds: []string{"meta-agent"},
		Metrics:      metrics,
	})
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	return l, sp
}

func TestListener_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		created bool
		outcome string
		wantErr error
	}{
		{
			name:    "csv-analyzer marker",
			payload: `{"subagent_type":"meta-agent","result":"Created the agent.\n\n✅ **AGENT_CREATED**: csv-analyzer specialized for CSV statistics","session_id":"s"}`,
			created: true,
			outcome: telemetry.SignalCreated,
		},
		{
			name:    "illustrative marker",
			payload: `{"subagent_kind":"meta-agent","result_text":"A marker looks like:\n\n✅ **AGENT_CREATED**: csv-analyzer specialized for CSV statistics\n\nI will create it next."}`,
			outcome: telemetry.SignalNoMarker,
		},
		{
			name:    "ambiguous",
			payload: `{"subagent_kind":"meta-agent","result_text":"✅ **AGENT_CREATED**: a specialized for x\n✅ **AGENT_CREATED**: b specialized for y"}`,
			created: true,
			outcome: telemetry.SignalAmbiguous,
		},
		{
			name:    "other subagent",
			payload: `{"subagent_kind":"code-reviewer","result_text":"✅ **AGENT_CREATED**: a specialized for x"}`,
			outcome: telemetry.SignalIgnored,
		},
		{
			name:    "malformed json",
			payload: `{"subagent_kind":`,
			outcome: telemetry.SignalMalformed,
			wantErr: signal.ErrSignalParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			metrics := &recordingMetrics{}
			l, _ := newListener(t, metrics)

			sig, err := l.Classify(context.Background(), spool.Delivery{ID: "d1", Data: []byte(tt.payload)})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Classify() error = %v, want %v", err, tt.wantErr)
			}
			if sig.CapabilityCreated != tt.created {
				t.Errorf("CapabilityCreated = %v, want %v", sig.CapabilityCreated, tt.created)
			}
			if len(metrics.signals) != 1 || metrics.signals[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", metrics.signals, tt.outcome)
			}
			if err == nil && sig.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should be set")
			}
		})
	}
}

func TestListener_Run(t *testing.T) {
	t.Parallel()

	l, sp := newListener(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan signal.Signal)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, out) }()

	payloads := []string{
		`not json`,
		`{"subagent_kind":"meta-agent","result_text":"✅ **TOOL_SERVER_CREATED**: weather specialized for forecasts"}`,
	}
	for _, p := range payloads {
		if _, err := sp.Publish(ctx, []byte(p)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	select {
	case sig := <-out:
		if !sig.CapabilityCreated || sig.Marker.Kind != capability.KindToolServer || sig.Marker.Name != "weather" {
			t.Errorf("signal = %+v", sig)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no signal delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if pending, _ := sp.Pending(); len(pending) != 0 {
		t.Errorf("spool entries should be consumed, %d left", len(pending))
	}
}
