package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates phoenix configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateHost(config.Host)
	v.validateSupervisor(config.Supervisor)
	v.validateSignals(config.Signals)
	v.validateLedger(config.Ledger)
	v.validateArtifacts(config.Artifacts)
	v.validateTools(config.Tools)
	v.validateLogging(config.Logging)

	return v.errors
}

// Validate is a convenience wrapper around Validator.
func (c *Config) Validate() error {
	if errs := NewValidator().Validate(c); errs.HasErrors() {
		return errs
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

var placeholders = []string{"{{task}}", "{{token}}", "{{instruction}}"}

func (v *Validator) validateHost(h HostConfig) {
	if strings.TrimSpace(h.Command) == "" {
		v.addError("host.command", "command is required")
	}
	if h.GracePeriod < 0 {
		v.addError("host.grace_period", "grace_period must be non-negative")
	}
	v.requirePlaceholder("host.task_args", h.TaskArgs, "{{task}}")
	v.requirePlaceholder("host.session_args", h.SessionArgs, "{{token}}")
	v.requirePlaceholder("host.resume_args", h.ResumeArgs, "{{token}}")
	if len(h.ResumeArgs) == 0 && len(h.ContinueArgs) == 0 {
		v.addError("host.resume_args", "resume_args or continue_args is required to relaunch the host")
	}
	if len(h.AllowedTools) > 0 && h.AllowedToolsFlag == "" {
		v.addError("host.allowed_tools_flag", "allowed_tools_flag is required when allowed_tools is set")
	}
	if h.PermissionMode != "" && h.PermissionModeFlag == "" {
		v.addError("host.permission_mode_flag", "permission_mode_flag is required when permission_mode is set")
	}
	for i, tool := range h.AllowedTools {
		if tool == "*" || strings.EqualFold(tool, "all") {
			v.addError(fmt.Sprintf("host.allowed_tools[%d]", i), "wildcard entries are not allowed")
		}
	}
}

// requirePlaceholder reports args that are set but never mention want.
// Unknown placeholders are reported too.
func (v *Validator) requirePlaceholder(path string, args []string, want string) {
	if len(args) == 0 {
		return
	}
	found := false
	for i, arg := range args {
		if strings.Contains(arg, want) {
			found = true
		}
		rest := arg
		for _, p := range placeholders {
			rest = strings.ReplaceAll(rest, p, "")
		}
		if strings.Contains(rest, "{{") {
			v.addError(fmt.Sprintf("%s[%d]", path, i), fmt.Sprintf("unknown placeholder in %q", arg))
		}
	}
	if !found {
		v.addError(path, fmt.Sprintf("must contain %s", want))
	}
}

func (v *Validator) validateSupervisor(s SupervisorConfig) {
	if s.MaxRestarts < 0 {
		v.addError("supervisor.max_restarts", "max_restarts must be non-negative")
	}
	switch s.OnConflict {
	case "", OnConflictFail, OnConflictSupersede:
	default:
		v.addError("supervisor.on_conflict", fmt.Sprintf("invalid policy: %s", s.OnConflict))
	}
	if s.SpoolDir == "" {
		v.addError("supervisor.spool_dir", "spool_dir is required")
	}
}

func (v *Validator) validateSignals(s SignalsConfig) {
	for i, kind := range s.CreatorKinds {
		if strings.TrimSpace(kind) == "" {
			v.addError(fmt.Sprintf("signals.creator_kinds[%d]", i), "creator kind must not be empty")
		}
	}
}

func (v *Validator) validateLedger(l LedgerConfig) {
	switch l.Backend {
	case BackendFilesystem, BackendSQLite, BackendBadger, BackendMemory:
	case BackendRedis:
		if l.Redis.Address == "" {
			v.addError("ledger.redis.address", "address is required for the redis backend")
		}
	case "":
		v.addError("ledger.backend", "backend is required")
	default:
		v.addError("ledger.backend", fmt.Sprintf("unknown backend: %s", l.Backend))
	}
}

func (v *Validator) validateArtifacts(a ArtifactsConfig) {
	if a.AgentsDir == "" {
		v.addError("artifacts.agents_dir", "agents_dir is required")
	}
	if a.ServersDir == "" {
		v.addError("artifacts.servers_dir", "servers_dir is required")
	}
	if a.MCPConfig == "" {
		v.addError("artifacts.mcp_config", "mcp_config is required")
	}
	for ext, cmd := range a.Interpreters {
		if !strings.HasPrefix(ext, ".") {
			v.addError("artifacts.interpreters."+ext, "extension must start with a dot")
		}
		if strings.TrimSpace(cmd) == "" {
			v.addError("artifacts.interpreters."+ext, "interpreter command is required")
		}
	}
	if a.ProbeTimeout < 0 {
		v.addError("artifacts.probe_timeout", "probe_timeout must be non-negative")
	}
}

func (v *Validator) validateTools(t ToolsConfig) {
	if t.Dir == "" {
		v.addError("tools.dir", "dir is required")
	}
	if t.MaxConcurrent <= 0 {
		v.addError("tools.max_concurrent", "max_concurrent must be positive")
	}
	if t.Timeout < 0 {
		v.addError("tools.timeout", "timeout must be non-negative")
	}
	if t.RetryAttempts < 0 {
		v.addError("tools.retry_attempts", "retry_attempts must be non-negative")
	}
	if t.CircuitBreakerThreshold < 0 {
		v.addError("tools.circuit_breaker_threshold", "circuit_breaker_threshold must be non-negative")
	}
}

func (v *Validator) validateLogging(l LoggingConfig) {
	switch strings.ToLower(l.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", l.Level))
	}
	switch l.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", l.Format))
	}
}
