// Package memory provides in-memory storage implementations, mainly for tests
// and one-shot runs that do not need durability.
package memory

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

// LedgerStore is an in-memory implementation of ledger.Store.
type LedgerStore struct {
	state  ledger.State
	closed bool
	mu     sync.Mutex
}

// NewLedgerStore creates an empty in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{state: ledger.State{Version: ledger.SchemaVersion}}
}

// Load returns a copy of the current state.
func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	if err := ctx.Err(); err != nil {
		return ledger.State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ledger.State{}, ledger.ErrClosed
	}
	return s.state.Clone(), nil
}

// Update applies fn under the store mutex.
func (s *LedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ledger.ErrClosed
	}

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := ledger.CheckAdvance(s.state, next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Close marks the store closed.
func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
