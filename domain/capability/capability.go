// Package capability defines the capabilities a host process can acquire
// while a task is running: sub-agent definitions and tool servers.
package capability

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind identifies the variant of a capability descriptor.
type Kind string

// Capability kinds.
const (
	KindAgent      Kind = "agent"
	KindToolServer Kind = "tool_server"
)

// Kinds returns all known capability kinds.
func Kinds() []Kind {
	return []Kind{KindAgent, KindToolServer}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAgent || k == KindToolServer
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// MaxNameLength bounds capability names.
const MaxNameLength = 64

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// ValidateName checks that name is a slug.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %q exceeds %d bytes", ErrInvalidName, name, MaxNameLength)
	}
	if !slugPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// ValidatePermissions rejects empty and wildcard permission entries.
func ValidatePermissions(perms []string) error {
	for _, p := range perms {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: empty entry", ErrWildcardPermission)
		}
		if strings.EqualFold(p, "all") || strings.ContainsAny(p, "*?[]") {
			return fmt.Errorf("%w: %q", ErrWildcardPermission, p)
		}
	}
	return nil
}

// AgentSpec is the payload of an agent capability.
type AgentSpec struct {
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// ToolServerSpec is the payload of a tool server capability.
type ToolServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Tools lists the tool names the server advertised when probed.
	// Empty means the tool list is unknown.
	Tools []string `json:"tools,omitempty"`
}

// Descriptor records one registered capability.
// Exactly one of Agent or ToolServer is set, matching Kind.
type Descriptor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	Purpose      string    `json:"purpose,omitempty"`
	Permissions  []string  `json:"permissions,omitempty"`
	Source       string    `json:"source"`
	RegisteredAt time.Time `json:"registered_at"`
	Generation   uint64    `json:"generation"`

	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	SupersededBy string     `json:"superseded_by,omitempty"`

	Agent      *AgentSpec      `json:"agent,omitempty"`
	ToolServer *ToolServerSpec `json:"tool_server,omitempty"`
}

// Key identifies a descriptor within its kind.
type Key struct {
	Kind Kind
	Name string
}

// String returns "kind/name".
func (k Key) String() string {
	return string(k.Kind) + "/" + k.Name
}

// Key returns the uniqueness key of the descriptor.
func (d Descriptor) Key() Key {
	return Key{Kind: d.Kind, Name: d.Name}
}

// Active reports whether the descriptor has not been superseded.
func (d Descriptor) Active() bool {
	return d.SupersededAt == nil
}

// Validate checks identity fields and the kind-specific payload.
func (d Descriptor) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidatePermissions(d.Permissions); err != nil {
		return err
	}
	switch d.Kind {
	case KindAgent:
		if d.Agent == nil || d.ToolServer != nil {
			return fmt.Errorf("%w: %s", ErrPayloadMismatch, d.Key())
		}
	case KindToolServer:
		if d.ToolServer == nil || d.Agent != nil {
			return fmt.Errorf("%w: %s", ErrPayloadMismatch, d.Key())
		}
		if d.ToolServer.Command == "" {
			return fmt.Errorf("%w: %s has no command", ErrPayloadMismatch, d.Key())
		}
	}
	return nil
}
