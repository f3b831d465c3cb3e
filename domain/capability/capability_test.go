package capability_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "csv-analyzer", false},
		{"underscore", "code_reviewer", false},
		{"digits", "agent2", false},
		{"empty", "", true},
		{"uppercase", "CSV-Analyzer", true},
		{"leading dash", "-csv", true},
		{"trailing dash", "csv-", true},
		{"double dash", "csv--analyzer", true},
		{"space", "csv analyzer", true},
		{"path", "../etc", true},
		{"too long", strings.Repeat("a", capability.MaxNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := capability.ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, capability.ErrInvalidName) {
				t.Errorf("error = %v, want ErrInvalidName", err)
			}
		})
	}
}

func TestValidatePermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		perms []string
		ok    bool
	}{
		{"nil", nil, true},
		{"enumerated", []string{"Read", "Write", "mcp__db__query"}, true},
		{"star", []string{"Read", "*"}, false},
		{"glob", []string{"mcp__db__*"}, false},
		{"all", []string{"ALL"}, false},
		{"blank", []string{" "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := capability.ValidatePermissions(tt.perms)
			if tt.ok && err != nil {
				t.Errorf("ValidatePermissions() unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, capability.ErrWildcardPermission) {
				t.Errorf("ValidatePermissions() error = %v, want ErrWildcardPermission", err)
			}
		})
	}
}

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	agent := capability.Descriptor{
		Name:  "csv-analyzer",
		Kind:  capability.KindAgent,
		Agent: &capability.AgentSpec{Description: "CSV statistics"},
	}
	server := capability.Descriptor{
		Name:       "weather",
		Kind:       capability.KindToolServer,
		ToolServer: &capability.ToolServerSpec{Command: "python3", Args: []string{"weather.py"}},
	}

	if err := agent.Validate(); err != nil {
		t.Errorf("agent.Validate() = %v", err)
	}
	if err := server.Validate(); err != nil {
		t.Errorf("server.Validate() = %v", err)
	}

	t.Run("payload mismatch", func(t *testing.T) {
		t.Parallel()
		d := agent
		d.Kind = capability.KindToolServer
		if err := d.Validate(); !errors.Is(err, capability.ErrPayloadMismatch) {
			t.Errorf("Validate() = %v, want ErrPayloadMismatch", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()
		d := agent
		d.Kind = "plugin"
		if err := d.Validate(); !errors.Is(err, capability.ErrInvalidKind) {
			t.Errorf("Validate() = %v, want ErrInvalidKind", err)
		}
	})

	t.Run("server without command", func(t *testing.T) {
		t.Parallel()
		d := server
		d.ToolServer = &capability.ToolServerSpec{}
		if err := d.Validate(); !errors.Is(err, capability.ErrPayloadMismatch) {
			t.Errorf("Validate() = %v, want ErrPayloadMismatch", err)
		}
	})
}

func TestDescriptor_Key(t *testing.T) {
	t.Parallel()

	d := capability.Descriptor{Name: "csv-analyzer", Kind: capability.KindAgent}
	if got := d.Key().String(); got != "agent/csv-analyzer" {
		t.Errorf("Key() = %s, want agent/csv-analyzer", got)
	}
	if !d.Active() {
		t.Error("new descriptor should be active")
	}
}
