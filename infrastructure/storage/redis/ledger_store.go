package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

// LedgerStore keeps ledger state under one key and updates it with
// WATCH/MULTI, so concurrent supervisors serialize their registrations.
type LedgerStore struct {
	client     *redis.Client
	keyPrefix  string
	maxRetries int
}

// NewLedgerStore connects to Redis.
func NewLedgerStore(ctx context.Context, cfg Config, opts ...ConfigOption) (*LedgerStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	s := NewLedgerStoreFromClient(client, cfg.KeyPrefix)
	if cfg.MaxTxRetries > 0 {
		s.maxRetries = cfg.MaxTxRetries
	}
	return s, nil
}

// NewLedgerStoreFromClient wraps an existing client.
func NewLedgerStoreFromClient(client *redis.Client, keyPrefix string) *LedgerStore {
	return &LedgerStore{client: client, keyPrefix: keyPrefix, maxRetries: 10}
}

func (s *LedgerStore) stateKey() string {
	return s.keyPrefix + "ledger:state"
}

func (s *LedgerStore) get(ctx context.Context, get func(context.Context, string) *redis.StringCmd) (ledger.State, error) {
	data, err := get(ctx, s.stateKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.Decode(nil)
	}
	if err != nil {
		return ledger.State{}, err
	}
	return ledger.Decode(data)
}

// Load reads the ledger.
func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	return s.get(ctx, s.client.Get)
}

// Update applies fn with optimistic locking on the state key.
func (s *LedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	key := s.stateKey()
	txf := func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx.Get)
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxContention
}

// Close closes the client.
func (s *LedgerStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
