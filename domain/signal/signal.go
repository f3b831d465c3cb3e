// Package signal models lifecycle signals emitted by the host process and
// the marker grammar that decides whether a capability was created.
package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Payload is the wire form of a lifecycle signal as delivered by the host hook.
// Both the documented keys and the host's native SubagentStop keys are accepted.
type Payload struct {
	SubagentKind string `json:"subagent_kind,omitempty"`
	SubagentType string `json:"subagent_type,omitempty"`
	ResultText   string `json:"result_text,omitempty"`
	Result       string `json:"result,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	EventName    string `json:"hook_event_name,omitempty"`
}

// Kind returns the emitting subagent kind.
func (p Payload) Kind() string {
	if p.SubagentKind != "" {
		return p.SubagentKind
	}
	return p.SubagentType
}

// Text returns the freeform result text.
func (p Payload) Text() string {
	if p.ResultText != "" {
		return p.ResultText
	}
	return p.Result
}

// ParsePayload decodes a hook payload. Any failure wraps ErrSignalParse.
func ParsePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("%w: %w", ErrSignalParse, ErrEmptyPayload)
	}
	if data[0] != '{' {
		return Payload{}, fmt.Errorf("%w: payload is not a JSON object", ErrSignalParse)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrSignalParse, err)
	}
	p.SubagentKind = strings.TrimSpace(p.Kind())
	p.SubagentType = ""
	p.ResultText = p.Text()
	p.Result = ""
	return p, nil
}

// Signal is a classified lifecycle event. It is consumed once and never persisted.
type Signal struct {
	ID           string
	SubagentKind string
	ResultText   string
	SessionID    string
	ReceivedAt   time.Time

	// CapabilityCreated is derived from ResultText by the marker grammar.
	CapabilityCreated bool

	// Marker is the first marker matched, nil when CapabilityCreated is false.
	Marker *Marker

	// Ambiguous is set when more than one marker matched.
	Ambiguous bool

	// Matches counts markers found in the final paragraph.
	Matches int
}
