// Package spool is the on-disk channel between the host's hook command and
// the supervisor. The hook publishes one file per signal; the supervisor
// watches the directory and consumes each file exactly once.
package spool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
)

// EnvDir names the environment variable carrying the spool directory to the hook.
const EnvDir = "PHOENIX_SPOOL_DIR"

const entrySuffix = ".json"

// Errors returned by the spool.
var (
	ErrEmptyPayload = errors.New("spool: empty payload")
	ErrWatch        = errors.New("spool: watch failed")
)

// Delivery is one consumed spool entry.
type Delivery struct {
	ID         string
	Data       []byte
	ReceivedAt time.Time
}

// Spool is a directory of pending signal files.
type Spool struct {
	dir string
	now func() time.Time

	// mu is held from claiming an entry until its delivery returns.
	mu sync.Mutex
}

// Option configures a Spool.
type Option func(*Spool)

// WithClock overrides the clock used for entry names and delivery times.
func WithClock(now func() time.Time) Option {
	return func(s *Spool) {
		s.now = now
	}
}

// New returns a spool rooted at dir.
func New(dir string, opts ...Option) *Spool {
	s := &Spool{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Publish atomically writes data as a new entry and returns its ID. Entry
// names sort in publication order.
func (s *Spool) Publish(ctx context.Context, data []byte) (string, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("spool: create %s: %w", s.dir, err)
	}
	id := fmt.Sprintf("%020d-%s", s.now().UnixNano(), uuid.NewString())
	if err := filesystem.WriteFileAtomic(filepath.Join(s.dir, id+entrySuffix), data, 0o600); err != nil {
		return "", fmt.Errorf("spool: publish: %w", err)
	}
	return id, nil
}

// Pending lists the IDs of unconsumed entries in publication order.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("spool: read %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if id, ok := entryID(e.Name()); ok && !e.IsDir() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Drain removes every pending entry and returns how many were removed.
// Signals left over from an earlier task must not restart this one.
func (s *Spool) Drain() (int, error) {
	ids, err := s.Pending()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := os.Remove(s.path(id)); err == nil {
			n++
		} else if !errors.Is(err, os.ErrNotExist) {
			return n, fmt.Errorf("spool: drain: %w", err)
		}
	}
	return n, nil
}

// Claim consumes one entry: it reads it and removes it. ok is false when the
// entry is already gone.
func (s *Spool) Claim(id string) (d Delivery, ok bool, err error) {
	path := s.path(id)
	data, err := os.ReadFile(path) // #nosec G304 -- path is inside the spool directory
	if errors.Is(err, os.ErrNotExist) {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, fmt.Errorf("spool: read %s: %w", id, err)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Delivery{}, false, nil
		}
		return Delivery{}, false, fmt.Errorf("spool: remove %s: %w", id, err)
	}
	return Delivery{ID: id, Data: data, ReceivedAt: s.now()}, true, nil
}

// Watch delivers every entry published until ctx is done, including entries
// already pending when Watch starts. It blocks and returns nil on cancellation.
func (s *Spool) Watch(ctx context.Context, deliver func(Delivery)) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrWatch, s.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatch, err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrWatch, s.dir, err)
	}

	// Entries published before the watch was armed.
	if err := s.claimPending(deliver); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			id, ok := entryID(filepath.Base(event.Name))
			if !ok {
				continue
			}
			if err := s.claim(id, deliver); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// On queue overflow events are lost; a rescan recovers them.
			logging.Warn().
				Add(logging.Component("spool")).
				Add(logging.Path(s.dir)).
				Add(logging.ErrorField(err)).
				Msg("watch error, rescanning spool")
			if err := s.claimPending(deliver); err != nil {
				return err
			}
		}
	}
}

// Flush delivers every entry published before the call. A delivery already
// in progress in Watch finishes before Flush claims anything, so when Flush
// returns each earlier entry has been handed to a deliver func.
func (s *Spool) Flush(deliver func(Delivery)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.Pending()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.deliver(id, deliver); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spool) claimPending(deliver func(Delivery)) error {
	ids, err := s.Pending()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.claim(id, deliver); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spool) claim(id string, deliver func(Delivery)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliver(id, deliver)
}

// deliver claims id and passes it on. The caller holds mu.
func (s *Spool) deliver(id string, deliver func(Delivery)) error {
	d, ok, err := s.Claim(id)
	if err != nil {
		return err
	}
	if ok {
		deliver(d)
	}
	return nil
}

func (s *Spool) path(id string) string {
	return filepath.Join(s.dir, id+entrySuffix)
}

// entryID extracts the ID from a spool file name. Temporary files are dot-prefixed.
func entryID(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entrySuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, entrySuffix), true
}
