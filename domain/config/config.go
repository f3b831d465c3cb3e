// Package config provides the domain model for phoenix configuration.
package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete supervisor configuration.
type Config struct {
	// Host describes how the host process is invoked.
	Host HostConfig `json:"host" yaml:"host" toml:"host"`
	// Supervisor contains restart policy settings.
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor" toml:"supervisor"`
	// Signals configures lifecycle signal classification.
	Signals SignalsConfig `json:"signals" yaml:"signals" toml:"signals"`
	// Ledger selects the registration ledger backend.
	Ledger LedgerConfig `json:"ledger" yaml:"ledger" toml:"ledger"`
	// Artifacts locates capability artifacts and the host's discovery files.
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts" toml:"artifacts"`
	// Tools configures the reloadable tool server.
	Tools ToolsConfig `json:"tools" yaml:"tools" toml:"tools"`
	// Logging configures log output.
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
}

// HostConfig describes the host command line. Argument templates may contain
// the placeholders {{task}}, {{token}} and {{instruction}}.
type HostConfig struct {
	// Command is the host executable.
	Command string `json:"command" yaml:"command" toml:"command"`
	// BaseArgs are passed on every launch.
	BaseArgs []string `json:"base_args,omitempty" yaml:"base_args,omitempty" toml:"base_args,omitempty"`
	// TaskArgs carry the task on the first launch. Omitted in interactive mode.
	TaskArgs []string `json:"task_args,omitempty" yaml:"task_args,omitempty" toml:"task_args,omitempty"`
	// SessionArgs assign a continuity token on the first launch.
	// When empty, the token is captured from the first signal instead.
	SessionArgs []string `json:"session_args,omitempty" yaml:"session_args,omitempty" toml:"session_args,omitempty"`
	// ResumeArgs resume a known session on relaunch.
	ResumeArgs []string `json:"resume_args,omitempty" yaml:"resume_args,omitempty" toml:"resume_args,omitempty"`
	// ContinueArgs resume the most recent session when no token is known.
	ContinueArgs []string `json:"continue_args,omitempty" yaml:"continue_args,omitempty" toml:"continue_args,omitempty"`
	// ResumeInstruction is the instruction passed on relaunch.
	ResumeInstruction string `json:"resume_instruction,omitempty" yaml:"resume_instruction,omitempty" toml:"resume_instruction,omitempty"`
	// AllowedToolsFlag carries the comma-joined allowlist.
	AllowedToolsFlag string `json:"allowed_tools_flag,omitempty" yaml:"allowed_tools_flag,omitempty" toml:"allowed_tools_flag,omitempty"`
	// AllowedTools is the base allowlist, extended with registered tool servers.
	AllowedTools []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty" toml:"allowed_tools,omitempty"`
	// PermissionModeFlag carries PermissionMode.
	PermissionModeFlag string `json:"permission_mode_flag,omitempty" yaml:"permission_mode_flag,omitempty" toml:"permission_mode_flag,omitempty"`
	// PermissionMode is the host permission mode (e.g. acceptEdits, bypassPermissions).
	PermissionMode string `json:"permission_mode,omitempty" yaml:"permission_mode,omitempty" toml:"permission_mode,omitempty"`
	// GracePeriod bounds how long the host may take to exit after SIGTERM.
	GracePeriod Duration `json:"grace_period,omitempty" yaml:"grace_period,omitempty" toml:"grace_period,omitempty"`
	// Env adds environment variables to the host.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	// WorkDir is the host working directory (default: current directory).
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty" toml:"work_dir,omitempty"`
}

// Conflict policies for re-registering an active capability name.
const (
	OnConflictFail      = "fail"
	OnConflictSupersede = "supersede"
)

// SupervisorConfig contains restart policy settings.
type SupervisorConfig struct {
	// MaxRestarts is the runaway restart limit per task.
	MaxRestarts int `json:"max_restarts" yaml:"max_restarts" toml:"max_restarts"`
	// OnConflict is fail or supersede.
	OnConflict string `json:"on_conflict,omitempty" yaml:"on_conflict,omitempty" toml:"on_conflict,omitempty"`
	// SpoolDir is where the hook publishes signals.
	SpoolDir string `json:"spool_dir,omitempty" yaml:"spool_dir,omitempty" toml:"spool_dir,omitempty"`
}

// SignalsConfig configures signal classification.
type SignalsConfig struct {
	// CreatorKinds are the subagent kinds whose results may carry a marker.
	CreatorKinds []string `json:"creator_kinds,omitempty" yaml:"creator_kinds,omitempty" toml:"creator_kinds,omitempty"`
}

// Ledger backends.
const (
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
	BackendBadger     = "badger"
	BackendRedis      = "redis"
	BackendMemory     = "memory"
)

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	// Backend is one of filesystem, sqlite, badger, redis or memory.
	Backend string `json:"backend" yaml:"backend" toml:"backend"`
	// Path is the file or directory for local backends.
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	// Redis configures the redis backend.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty" toml:"redis,omitempty"`
}

// PathOrDefault returns Path, or the backend's default location under .phoenix.
func (c LedgerConfig) PathOrDefault() string {
	if c.Path != "" {
		return c.Path
	}
	switch c.Backend {
	case BackendSQLite:
		return filepath.Join(".phoenix", "ledger.db")
	case BackendBadger:
		return filepath.Join(".phoenix", "ledger")
	default:
		return filepath.Join(".phoenix", "ledger.json")
	}
}

// RedisConfig configures the redis ledger backend.
type RedisConfig struct {
	Address   string `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty" toml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty" toml:"key_prefix,omitempty"`
}

// ArtifactsConfig locates capability artifacts.
type ArtifactsConfig struct {
	// AgentsDir holds agent definition files (<name>.md).
	AgentsDir string `json:"agents_dir,omitempty" yaml:"agents_dir,omitempty" toml:"agents_dir,omitempty"`
	// ServersDir holds tool server programs (<name>.<ext>).
	ServersDir string `json:"servers_dir,omitempty" yaml:"servers_dir,omitempty" toml:"servers_dir,omitempty"`
	// MCPConfig is the host's tool server discovery file.
	MCPConfig string `json:"mcp_config,omitempty" yaml:"mcp_config,omitempty" toml:"mcp_config,omitempty"`
	// SettingsFile is the host's settings file carrying hook registrations.
	SettingsFile string `json:"settings_file,omitempty" yaml:"settings_file,omitempty" toml:"settings_file,omitempty"`
	// Interpreters maps a server file extension to the command that runs it.
	Interpreters map[string]string `json:"interpreters,omitempty" yaml:"interpreters,omitempty" toml:"interpreters,omitempty"`
	// ProbeToolServers lists a server's tools before registering it.
	ProbeToolServers bool `json:"probe_tool_servers,omitempty" yaml:"probe_tool_servers,omitempty" toml:"probe_tool_servers,omitempty"`
	// ProbeTimeout bounds a probe.
	ProbeTimeout Duration `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty" toml:"probe_timeout,omitempty"`
}

// ToolsConfig configures the reloadable tool server.
type ToolsConfig struct {
	// Dir is the tool registry store.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
	// Pattern selects descriptor files inside Dir.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty" toml:"pattern,omitempty"`
	// ServerName is announced to clients.
	ServerName string `json:"server_name,omitempty" yaml:"server_name,omitempty" toml:"server_name,omitempty"`
	// MaxConcurrent bounds concurrent executions.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty" toml:"max_concurrent,omitempty"`
	// Timeout is the default execution timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	// RetryAttempts applies to idempotent tools only.
	RetryAttempts int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty" toml:"retry_attempts,omitempty"`
	// CircuitBreakerThreshold is consecutive failures before a tool's circuit opens.
	CircuitBreakerThreshold int `json:"circuit_breaker_threshold,omitempty" yaml:"circuit_breaker_threshold,omitempty" toml:"circuit_breaker_threshold,omitempty"`
	// ScriptPackages overrides the script import allowlist.
	ScriptPackages []string `json:"script_packages,omitempty" yaml:"script_packages,omitempty" toml:"script_packages,omitempty"`
	// EnvAllowlist overrides the environment passed to command tools.
	EnvAllowlist []string `json:"env_allowlist,omitempty" yaml:"env_allowlist,omitempty" toml:"env_allowlist,omitempty"`
	// WasmMemoryPages limits wasm tool memory, in 64KiB pages.
	WasmMemoryPages uint32 `json:"wasm_memory_pages,omitempty" yaml:"wasm_memory_pages,omitempty" toml:"wasm_memory_pages,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	// NoColor disables console colors.
	NoColor bool `json:"no_color,omitempty" yaml:"no_color,omitempty" toml:"no_color,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			Command:            "claude",
			TaskArgs:           []string{"-p", "{{task}}"},
			SessionArgs:        []string{"--session-id", "{{token}}"},
			ResumeArgs:         []string{"--resume", "{{token}}", "-p", "{{instruction}}"},
			ContinueArgs:       []string{"--continue", "{{instruction}}"},
			ResumeInstruction:  "meta-agent finished. continue with original task",
			AllowedToolsFlag:   "--allowedTools",
			AllowedTools:       []string{"Task"},
			PermissionModeFlag: "--permission-mode",
			PermissionMode:     "acceptEdits",
			GracePeriod:        Duration(5 * time.Second),
		},
		Supervisor: SupervisorConfig{
			MaxRestarts: 3,
			OnConflict:  OnConflictFail,
			SpoolDir:    filepath.Join(".phoenix", "spool"),
		},
		Signals: SignalsConfig{
			CreatorKinds: []string{"meta-agent"},
		},
		Ledger: LedgerConfig{
			Backend: BackendFilesystem,
		},
		Artifacts: ArtifactsConfig{
			AgentsDir:    filepath.Join(".claude", "agents"),
			ServersDir:   filepath.Join(".claude", "mcp-servers"),
			MCPConfig:    ".mcp.json",
			SettingsFile: filepath.Join(".claude", "settings.json"),
			Interpreters: map[string]string{
				".py":  "python3",
				".js":  "node",
				".mjs": "node",
				".ts":  "npx tsx",
				".sh":  "sh",
			},
			ProbeTimeout: Duration(10 * time.Second),
		},
		Tools: ToolsConfig{
			Dir:                     filepath.Join(".phoenix", "tools"),
			Pattern:                 "**/*.json",
			ServerName:              "phoenix-tools",
			MaxConcurrent:           8,
			Timeout:                 Duration(30 * time.Second),
			RetryAttempts:           3,
			CircuitBreakerThreshold: 5,
			WasmMemoryPages:         256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Interpreter returns the command line that runs a server file with the given
// extension. ok is false when no interpreter is configured.
func (c ArtifactsConfig) Interpreter(ext string) (argv []string, ok bool) {
	cmd, ok := c.Interpreters[strings.ToLower(ext)]
	if !ok {
		return nil, false
	}
	return strings.Fields(cmd), true
}

// Duration is a time.Duration that supports JSON, YAML and TOML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	dur, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
