package hostconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
)

// HookEvent is the host event that carries sub-agent results.
const HookEvent = "SubagentStop"

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher"`
	Hooks   []hookCommand `json:"hooks"`
}

// InstallHook makes the host settings file at path run command on HookEvent.
// Existing settings and hooks are kept. It reports whether the file changed.
func InstallHook(path, command string) (bool, error) {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(path) // #nosec G304 -- settings path is configured by the operator
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("read %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	hooks := map[string]json.RawMessage{}
	if raw, ok := doc["hooks"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &hooks); err != nil {
			return false, fmt.Errorf("parse %s: hooks: %w", path, err)
		}
	}
	var matchers []json.RawMessage
	if raw, ok := hooks[HookEvent]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &matchers); err != nil {
			return false, fmt.Errorf("parse %s: hooks.%s: %w", path, HookEvent, err)
		}
	}

	for _, raw := range matchers {
		var m hookMatcher
		if json.Unmarshal(raw, &m) != nil {
			continue
		}
		for _, h := range m.Hooks {
			if h.Type == "command" && h.Command == command {
				return false, nil
			}
		}
	}
	entry, err := json.Marshal(hookMatcher{Hooks: []hookCommand{{Type: "command", Command: command}}})
	if err != nil {
		return false, err
	}
	matchers = append(matchers, entry)

	if hooks[HookEvent], err = json.Marshal(matchers); err != nil {
		return false, err
	}
	if doc["hooks"], err = json.Marshal(hooks); err != nil {
		return false, err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- host config directory
		return false, err
	}
	if err := filesystem.WriteFileAtomic(path, append(out, '\n'), 0600); err != nil {
		return false, err
	}
	return true, nil
}
