package config_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/agent-phoenix/domain/config"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Supervisor.MaxRestarts != 3 {
		t.Errorf("MaxRestarts = %d, want 3", cfg.Supervisor.MaxRestarts)
	}
	if got := cfg.Host.GracePeriod.Duration(); got != 5*time.Second {
		t.Errorf("GracePeriod = %v, want 5s", got)
	}
	if len(cfg.Signals.CreatorKinds) != 1 || cfg.Signals.CreatorKinds[0] != "meta-agent" {
		t.Errorf("CreatorKinds = %v, want [meta-agent]", cfg.Signals.CreatorKinds)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		path   string
	}{
		{"missing command", func(c *config.Config) { c.Host.Command = " " }, "host.command"},
		{"negative grace", func(c *config.Config) { c.Host.GracePeriod = -1 }, "host.grace_period"},
		{"task args without placeholder", func(c *config.Config) { c.Host.TaskArgs = []string{"-p"} }, "host.task_args"},
		{"unknown placeholder", func(c *config.Config) { c.Host.ResumeArgs = []string{"--resume", "{{token}}", "{{nope}}"} }, "host.resume_args[2]"},
		{"no way to relaunch", func(c *config.Config) { c.Host.ResumeArgs, c.Host.ContinueArgs = nil, nil }, "host.resume_args"},
		{"wildcard allowlist", func(c *config.Config) { c.Host.AllowedTools = []string{"Task", "*"} }, "host.allowed_tools[1]"},
		{"negative restarts", func(c *config.Config) { c.Supervisor.MaxRestarts = -1 }, "supervisor.max_restarts"},
		{"bad conflict policy", func(c *config.Config) { c.Supervisor.OnConflict = "merge" }, "supervisor.on_conflict"},
		{"empty creator kind", func(c *config.Config) { c.Signals.CreatorKinds = []string{""} }, "signals.creator_kinds[0]"},
		{"unknown backend", func(c *config.Config) { c.Ledger.Backend = "etcd" }, "ledger.backend"},
		{"redis without address", func(c *config.Config) { c.Ledger.Backend = config.BackendRedis }, "ledger.redis.address"},
		{"interpreter without dot", func(c *config.Config) { c.Artifacts.Interpreters = map[string]string{"py": "python3"} }, "artifacts.interpreters.py"},
		{"zero concurrency", func(c *config.Config) { c.Tools.MaxConcurrent = 0 }, "tools.max_concurrent"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tt.mutate(cfg)

			errs := config.NewValidator().Validate(cfg)
			if !errs.HasErrors() {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Path == tt.path {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.path, errs)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	one := config.ValidationErrors{{Path: "a", Message: "bad"}}
	if one.Error() != "a: bad" {
		t.Errorf("Error() = %q", one.Error())
	}
	two := append(one, config.ValidationError{Message: "worse"})
	if !strings.HasPrefix(two.Error(), "2 validation errors") {
		t.Errorf("Error() = %q", two.Error())
	}

	var err error = two
	var target config.ValidationErrors
	if !errors.As(err, &target) || len(target) != 2 {
		t.Error("errors.As should recover ValidationErrors")
	}
}

func TestLedgerConfig_PathOrDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg  config.LedgerConfig
		want string
	}{
		{config.LedgerConfig{Backend: config.BackendFilesystem}, ".phoenix/ledger.json"},
		{config.LedgerConfig{Backend: config.BackendSQLite}, ".phoenix/ledger.db"},
		{config.LedgerConfig{Backend: config.BackendBadger}, ".phoenix/ledger"},
		{config.LedgerConfig{Backend: config.BackendSQLite, Path: "x.db"}, "x.db"},
	}
	for _, tt := range tests {
		if got := tt.cfg.PathOrDefault(); got != tt.want {
			t.Errorf("PathOrDefault(%s) = %q, want %q", tt.cfg.Backend, got, tt.want)
		}
	}
}

func TestArtifactsConfig_Interpreter(t *testing.T) {
	t.Parallel()

	a := config.Default().Artifacts
	argv, ok := a.Interpreter(".TS")
	if !ok || len(argv) != 2 || argv[0] != "npx" || argv[1] != "tsx" {
		t.Errorf("Interpreter(.TS) = %v, %v", argv, ok)
	}
	if _, ok := a.Interpreter(".rb"); ok {
		t.Error("Interpreter(.rb) should not be configured")
	}
}

func TestDuration_Encodings(t *testing.T) {
	t.Parallel()

	type holder struct {
		D config.Duration `json:"d" yaml:"d"`
	}

	var j holder
	if err := json.Unmarshal([]byte(`{"d":"1m30s"}`), &j); err != nil {
		t.Fatalf("json: %v", err)
	}
	if j.D.Duration() != 90*time.Second {
		t.Errorf("json = %v", j.D.Duration())
	}

	var y holder
	if err := yaml.Unmarshal([]byte("d: 250ms\n"), &y); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if y.D.Duration() != 250*time.Millisecond {
		t.Errorf("yaml = %v", y.D.Duration())
	}

	var bad holder
	if err := json.Unmarshal([]byte(`{"d":"soon"}`), &bad); err == nil {
		t.Error("expected error for unparseable duration")
	}

	text, err := config.Duration(2 * time.Second).MarshalText()
	if err != nil || string(text) != "2s" {
		t.Errorf("MarshalText = %q, %v", text, err)
	}
}
