// Package hostproc builds host command lines and controls host processes.
package hostproc

import (
	"slices"
	"strings"

	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
)

// Invocation is a fully resolved host command line.
type Invocation struct {
	Command string
	Args    []string
	// Env is appended to the launcher's base environment as KEY=VALUE pairs.
	Env []string
	Dir string
}

// String renders the invocation for logs.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Command}, inv.Args...), " ")
}

// Request describes one launch of the host.
type Request struct {
	// Task is passed on the first launch. Empty means interactive.
	Task string
	// Token is the continuity token, possibly empty.
	Token supervision.ContinuityToken
	// Resume selects the relaunch arguments instead of the task arguments.
	Resume bool
	// AllowedTools is the complete allowlist for this launch.
	AllowedTools []string
	// PermissionMode overrides the configured permission mode.
	PermissionMode string
	// Env holds extra KEY=VALUE pairs.
	Env []string
}

// Build resolves a host invocation from configuration and a launch request.
//
// A first launch uses the task arguments and, when a token is known, the
// session arguments. A relaunch uses the resume arguments when a token is
// known and the continue arguments otherwise.
func Build(cfg domainconfig.HostConfig, req Request) Invocation {
	r := strings.NewReplacer(
		"{{task}}", req.Task,
		"{{token}}", req.Token.String(),
		"{{instruction}}", cfg.ResumeInstruction,
	)
	expand := func(templates []string) []string {
		out := make([]string, len(templates))
		for i, t := range templates {
			out[i] = r.Replace(t)
		}
		return out
	}

	args := expand(cfg.BaseArgs)
	switch {
	case req.Resume && !req.Token.IsZero() && len(cfg.ResumeArgs) > 0:
		args = append(args, expand(cfg.ResumeArgs)...)
	case req.Resume:
		args = append(args, expand(cfg.ContinueArgs)...)
	default:
		if req.Task != "" {
			args = append(args, expand(cfg.TaskArgs)...)
		}
		if !req.Token.IsZero() {
			args = append(args, expand(cfg.SessionArgs)...)
		}
	}

	if cfg.AllowedToolsFlag != "" && len(req.AllowedTools) > 0 {
		args = append(args, cfg.AllowedToolsFlag, strings.Join(req.AllowedTools, ","))
	}

	mode := req.PermissionMode
	if mode == "" {
		mode = cfg.PermissionMode
	}
	if cfg.PermissionModeFlag != "" && mode != "" {
		args = append(args, cfg.PermissionModeFlag, mode)
	}

	env := make([]string, 0, len(cfg.Env)+len(req.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)
	env = append(env, req.Env...)

	return Invocation{
		Command: cfg.Command,
		Args:    args,
		Env:     env,
		Dir:     cfg.WorkDir,
	}
}
