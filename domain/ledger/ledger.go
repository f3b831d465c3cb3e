// Package ledger provides the durable, append-only record of capabilities
// registered with the host, plus the monotonic generation counter.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// Ledger records registered capabilities on top of a Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger backed by store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type registerOptions struct {
	supersede bool
	commit    func(ctx context.Context, d capability.Descriptor, previous uint64) error
}

// RegisterOption configures a single Register call.
type RegisterOption func(*registerOptions)

// WithSupersede replaces an active descriptor of the same name and kind
// instead of failing with capability.ErrDuplicateName.
func WithSupersede() RegisterOption {
	return func(o *registerOptions) {
		o.supersede = true
	}
}

// WithCommitHook runs fn inside the store transaction once d has its
// generation, with previous being the generation it replaced. An error from
// fn aborts the registration. Stores that retry conflicting transactions may
// call fn more than once, so it must be idempotent.
func WithCommitHook(fn func(ctx context.Context, d capability.Descriptor, previous uint64) error) RegisterOption {
	return func(o *registerOptions) {
		o.commit = fn
	}
}

// Register appends d and bumps the generation. The returned descriptor carries
// the assigned ID, timestamp and generation.
func (l *Ledger) Register(ctx context.Context, d capability.Descriptor, opts ...RegisterOption) (capability.Descriptor, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := d.Validate(); err != nil {
		return capability.Descriptor{}, err
	}

	var registered capability.Descriptor
	err := l.store.Update(ctx, func(s *State) error {
		now := l.now().UTC()
		if d.ID == "" {
			d.ID = uuid.NewString()
		}

		if i := s.find(d.Key()); i >= 0 {
			if !o.supersede {
				return fmt.Errorf("%w: %s", capability.ErrDuplicateName, d.Key())
			}
			s.Descriptors[i].SupersededAt = &now
			s.Descriptors[i].SupersededBy = d.ID
		}

		previous := s.Generation
		s.Generation++
		s.UpdatedAt = now
		d.Generation = s.Generation
		d.RegisteredAt = now
		d.SupersededAt = nil
		d.SupersededBy = ""
		if o.commit != nil {
			if err := o.commit(ctx, d, previous); err != nil {
				return err
			}
		}
		s.Descriptors = append(s.Descriptors, d)
		registered = d
		return nil
	})
	if err != nil {
		return capability.Descriptor{}, err
	}
	return registered, nil
}

// CurrentGeneration returns the generation counter.
func (l *Ledger) CurrentGeneration(ctx context.Context) (uint64, error) {
	s, err := l.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	return s.Generation, nil
}

// ListActive returns descriptors that have not been superseded.
func (l *Ledger) ListActive(ctx context.Context) ([]capability.Descriptor, error) {
	s, err := l.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Active(), nil
}

// History returns every descriptor ever registered, superseded ones included.
func (l *Ledger) History(ctx context.Context) ([]capability.Descriptor, error) {
	s, err := l.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return s.Descriptors, nil
}

// Lookup returns the active descriptor with the given kind and name.
func (l *Ledger) Lookup(ctx context.Context, kind capability.Kind, name string) (capability.Descriptor, error) {
	s, err := l.store.Load(ctx)
	if err != nil {
		return capability.Descriptor{}, err
	}
	i := s.find(capability.Key{Kind: kind, Name: name})
	if i < 0 {
		return capability.Descriptor{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, name)
	}
	return s.Descriptors[i], nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
