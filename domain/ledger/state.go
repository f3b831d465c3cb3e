package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// SchemaVersion is the version of the persisted State layout.
const SchemaVersion = 1

// State is the persisted form of the registration ledger.
type State struct {
	Version     int                     `json:"version"`
	Generation  uint64                  `json:"generation"`
	UpdatedAt   time.Time               `json:"updated_at"`
	Descriptors []capability.Descriptor `json:"descriptors"`
}

// Clone returns a deep enough copy for a store to hand out.
func (s State) Clone() State {
	out := s
	out.Descriptors = make([]capability.Descriptor, len(s.Descriptors))
	copy(out.Descriptors, s.Descriptors)
	return out
}

// Active returns descriptors that have not been superseded, in registration order.
func (s State) Active() []capability.Descriptor {
	var active []capability.Descriptor
	for _, d := range s.Descriptors {
		if d.Active() {
			active = append(active, d)
		}
	}
	return active
}

// find returns the index of the active descriptor with key, or -1.
func (s State) find(key capability.Key) int {
	for i, d := range s.Descriptors {
		if d.Active() && d.Key() == key {
			return i
		}
	}
	return -1
}

// Encode serialises the state.
func Encode(s State) ([]byte, error) {
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	return json.MarshalIndent(s, "", "  ")
}

// Decode parses persisted state. Empty input yields the zero state.
func Decode(data []byte) (State, error) {
	var s State
	if len(data) == 0 {
		s.Version = SchemaVersion
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if s.Version > SchemaVersion {
		return State{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	return s, nil
}

// CheckAdvance rejects a transition that would lower the generation or drop
// previously recorded descriptors.
func CheckAdvance(before, after State) error {
	if after.Generation < before.Generation {
		return fmt.Errorf("%w: %d -> %d", ErrGenerationRegressed, before.Generation, after.Generation)
	}
	if len(after.Descriptors) < len(before.Descriptors) {
		return fmt.Errorf("%w: history shrank from %d to %d entries", ErrCorrupt, len(before.Descriptors), len(after.Descriptors))
	}
	return nil
}
