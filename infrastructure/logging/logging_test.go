package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Config{Level: "trace", Format: "json", Output: buf}), buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if config.Output != os.Stderr {
		t.Errorf("Output = %v, want os.Stderr", config.Output)
	}
	if HeadlessConfig().Format != "json" {
		t.Error("headless runs should log JSON")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	ev := &LogEvent{event: logger.Info()}
	ev.Add(Component("supervisor")).
		Add(TaskID("task-1")).
		Add(Transition("running", "restarting")).
		Add(Generation(3)).
		Add(Capability("agent", "csv-analyzer")).
		Add(PID(42)).
		Add(Restarts(1)).
		Add(Duration(1500 * time.Millisecond)).
		Add(ErrorField(errors.New("boom"))).
		Add(ErrorField(nil)).
		Msg("restart")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	want := map[string]any{
		"component":       "supervisor",
		"task_id":         "task-1",
		"from_state":      "running",
		"to_state":        "restarting",
		"generation":      float64(3),
		"capability_kind": "agent",
		"capability":      "csv-analyzer",
		"pid":             float64(42),
		"restarts":        float64(1),
		"duration_ms":     float64(1500),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Error("error field missing")
	}
}

func TestInitReplacesDefault(t *testing.T) {
	buf := &bytes.Buffer{}
	Init(Config{Level: "warn", Format: "json", Output: buf})
	defer Init(DefaultConfig())

	Info().Msg("hidden")
	Warn().Add(Str("k", "v")).Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line logged at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line missing")
	}
}
