// Package filesystem provides a file-backed ledger store.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

// Errors
var (
	ErrLockFailed  = errors.New("filesystem: ledger lock failed")
	ErrWriteFailed = errors.New("filesystem: ledger write failed")
)

// LedgerStore persists ledger state as one JSON file. Writers take an exclusive
// flock on a sibling lock file, write a temp file, fsync it, and rename it over
// the ledger, so a crash never leaves a half-written ledger behind.
type LedgerStore struct {
	path       string
	lock       *flock.Flock
	retryDelay time.Duration
	mu         sync.Mutex
	closed     bool
}

// LedgerOption configures a LedgerStore.
type LedgerOption func(*LedgerStore)

// WithLockRetryDelay sets the polling interval used while waiting for the lock.
func WithLockRetryDelay(d time.Duration) LedgerOption {
	return func(s *LedgerStore) {
		s.retryDelay = d
	}
}

// NewLedgerStore prepares the ledger file at path. The file itself is created
// on the first Update.
func NewLedgerStore(path string, opts ...LedgerOption) (*LedgerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- state directory
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	s := &LedgerStore{
		path:       path,
		lock:       flock.New(path + ".lock"),
		retryDelay: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the ledger file path.
func (s *LedgerStore) Path() string {
	return s.path
}

// Load reads the current state under a shared lock.
func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ledger.State{}, ledger.ErrClosed
	}

	ok, err := s.lock.TryRLockContext(ctx, s.retryDelay)
	if err != nil || !ok {
		return ledger.State{}, errors.Join(ErrLockFailed, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.read()
}

// Update performs a locked read-modify-write-rename cycle.
func (s *LedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ledger.ErrClosed
	}

	ok, err := s.lock.TryLockContext(ctx, s.retryDelay)
	if err != nil || !ok {
		return errors.Join(ErrLockFailed, err)
	}
	defer func() { _ = s.lock.Unlock() }()

	current, err := s.read()
	if err != nil {
		return err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := ledger.CheckAdvance(current, next); err != nil {
		return err
	}

	data, err := ledger.Encode(next)
	if err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	if err := WriteFileAtomic(s.path, data, 0600); err != nil {
		return errors.Join(ErrWriteFailed, err)
	}
	return nil
}

// Close releases the lock handle.
func (s *LedgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Close()
}

func (s *LedgerStore) read() (ledger.State, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is configured by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger.Decode(nil)
		}
		return ledger.State{}, fmt.Errorf("read ledger: %w", err)
	}
	return ledger.Decode(data)
}
