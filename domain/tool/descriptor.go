// Package tool defines the descriptors served by the reloadable tool server
// and the results their implementations produce.
package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ImplementationType selects the executor for a descriptor.
type ImplementationType string

// Implementation types.
const (
	ImplementationCommand ImplementationType = "command"
	ImplementationScript  ImplementationType = "script"
	ImplementationWasm    ImplementationType = "wasm"
)

// Implementation references the code that runs when the tool is called.
type Implementation struct {
	Type ImplementationType `json:"type"`

	// Command and Args run an executable; arguments arrive as JSON on stdin.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Code is inline Go source for script tools.
	Code string `json:"code,omitempty"`

	// File is a script source or WASM module path, relative to the store.
	File string `json:"file,omitempty"`

	// Entrypoint is the exported function of a reactor-style WASM module.
	// Modules exporting _start run as WASI commands and ignore it.
	Entrypoint string `json:"entrypoint,omitempty"`

	// Timeout bounds one execution, e.g. "30s".
	Timeout string `json:"timeout,omitempty"`
}

// TimeoutOr returns the parsed timeout, or def when unset or invalid.
func (i Implementation) TimeoutOr(def time.Duration) time.Duration {
	if i.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(i.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks that the implementation names what its type needs.
func (i Implementation) Validate() error {
	switch i.Type {
	case ImplementationCommand:
		if i.Command == "" {
			return fmt.Errorf("%w: command implementation without command", ErrInvalidDescriptor)
		}
	case ImplementationScript:
		if i.Code == "" && i.File == "" {
			return fmt.Errorf("%w: script implementation without code or file", ErrInvalidDescriptor)
		}
	case ImplementationWasm:
		if i.File == "" {
			return fmt.Errorf("%w: wasm implementation without file", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownImplementation, i.Type)
	}
	if i.Timeout != "" {
		if _, err := time.ParseDuration(i.Timeout); err != nil {
			return fmt.Errorf("%w: timeout: %w", ErrInvalidDescriptor, err)
		}
	}
	return nil
}

// Annotations describe tool behaviour.
type Annotations struct {
	// ReadOnly indicates the tool has no side effects.
	ReadOnly bool `json:"readOnly,omitempty"`

	// Idempotent indicates repeated calls with the same input are safe to retry.
	Idempotent bool `json:"idempotent,omitempty"`

	// Destructive indicates the tool may cause irreversible changes.
	Destructive bool `json:"destructive,omitempty"`
}

// Metadata is optional bookkeeping attached by the tool author.
type Metadata struct {
	Version     string      `json:"version,omitempty"`
	Author      string      `json:"author,omitempty"`
	Category    string      `json:"category,omitempty"`
	Created     string      `json:"created,omitempty"`
	Annotations Annotations `json:"annotations,omitempty"`
}

// Descriptor is one tool registry entry.
type Descriptor struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	InputSchema    json.RawMessage `json:"inputSchema"`
	Implementation Implementation  `json:"implementation"`
	Metadata       Metadata        `json:"metadata,omitempty"`

	// Source is the store-relative path the descriptor was read from.
	Source string `json:"-"`
}

// Validate checks the structural rules a descriptor must satisfy. Schema
// compilation is left to the store, which owns the compiler.
func (d Descriptor) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidDescriptor, d.Name)
	}
	if len(d.InputSchema) == 0 {
		return fmt.Errorf("%w: %s has no inputSchema", ErrInvalidDescriptor, d.Name)
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(d.InputSchema, &probe); err != nil {
		return fmt.Errorf("%w: %s inputSchema: %w", ErrInvalidDescriptor, d.Name, err)
	}
	if probe.Type != "object" {
		return fmt.Errorf("%w: %s inputSchema type must be object", ErrInvalidDescriptor, d.Name)
	}
	return d.Implementation.Validate()
}

// Info is the listing form of a descriptor.
type Info struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Info returns the listing form.
func (d Descriptor) Info() Info {
	return Info{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
}
