package hostconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
)

// ErrRegistryCorrupt indicates the tool server registry file cannot be decoded.
var ErrRegistryCorrupt = errors.New("tool server registry corrupt")

// ServerEntry is one server in the host's registry file.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Registry edits the host's tool server registry ({"mcpServers": {...}}).
// Only the named server entry is rewritten; other keys and other servers are
// kept byte for byte, including fields phoenix does not model.
type Registry struct {
	path string
	lock *flock.Flock
}

// NewRegistry returns a registry stored at path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// Servers returns the registered servers.
func (r *Registry) Servers() (map[string]ServerEntry, error) {
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	return decodeServers(doc)
}

// Upsert adds or replaces server name under an exclusive lock, then writes the
// file atomically.
func (r *Registry) Upsert(ctx context.Context, name string, entry ServerEntry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil { // #nosec G301 -- host config directory
		return fmt.Errorf("create registry directory: %w", err)
	}
	ok, err := r.lock.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil || !ok {
		return errors.Join(errors.New("lock tool server registry"), err)
	}
	defer func() { _ = r.lock.Unlock() }()

	doc, err := r.read()
	if err != nil {
		return err
	}
	servers, err := rawServers(doc)
	if err != nil {
		return err
	}
	if servers[name], err = json.Marshal(entry); err != nil {
		return err
	}

	raw, err := json.Marshal(servers)
	if err != nil {
		return err
	}
	doc["mcpServers"] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return filesystem.WriteFileAtomic(r.path, append(data, '\n'), 0600)
}

func (r *Registry) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegistryCorrupt, r.path, err)
	}
	return doc, nil
}

func rawServers(doc map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	servers := map[string]json.RawMessage{}
	raw, ok := doc["mcpServers"]
	if !ok || string(raw) == "null" {
		return servers, nil
	}
	if err := json.Unmarshal(raw, &servers); err != nil {
		return nil, fmt.Errorf("%w: mcpServers: %w", ErrRegistryCorrupt, err)
	}
	return servers, nil
}

// decodeServers reads the command-style view of each server. Remote servers
// decode with an empty Command.
func decodeServers(doc map[string]json.RawMessage) (map[string]ServerEntry, error) {
	raw, err := rawServers(doc)
	if err != nil {
		return nil, err
	}
	servers := make(map[string]ServerEntry, len(raw))
	for name, r := range raw {
		var e ServerEntry
		if err := json.Unmarshal(r, &e); err != nil {
			return nil, fmt.Errorf("%w: mcpServers.%s: %w", ErrRegistryCorrupt, name, err)
		}
		servers[name] = e
	}
	return servers, nil
}
