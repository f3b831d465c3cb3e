package badger

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

const maxConflictRetries = 5

// LedgerStore is a BadgerDB-backed implementation of ledger.Store.
type LedgerStore struct {
	db  *badger.DB
	key []byte
	mu  sync.Mutex
}

// NewLedgerStore opens a BadgerDB ledger store.
func NewLedgerStore(cfg Config, opts ...Option) (*LedgerStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewLedgerStoreFromDB(db, cfg.KeyPrefix), nil
}

// NewLedgerStoreFromDB creates a ledger store on an existing database.
func NewLedgerStoreFromDB(db *badger.DB, keyPrefix string) *LedgerStore {
	return &LedgerStore{db: db, key: []byte(keyPrefix + "ledger:state")}
}

func (s *LedgerStore) get(txn *badger.Txn) (ledger.State, error) {
	item, err := txn.Get(s.key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ledger.Decode(nil)
	}
	if err != nil {
		return ledger.State{}, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return ledger.State{}, err
	}
	return ledger.Decode(data)
}

// Load reads the ledger in a read-only transaction.
func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	if err := ctx.Err(); err != nil {
		return ledger.State{}, err
	}
	var state ledger.State
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		state, err = s.get(txn)
		return err
	})
	return state, err
}

// Update runs fn inside a read-write transaction, retrying on conflicts.
func (s *LedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			current, err := s.get(txn)
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
				return err
			}
			return txn.Set(s.key, data)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}
