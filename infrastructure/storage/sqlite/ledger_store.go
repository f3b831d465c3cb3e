package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
)

// LedgerStore is a SQLite-backed implementation of ledger.Store.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore opens the database and creates the ledger tables.
func NewLedgerStore(cfg Config, opts ...Option) (*LedgerStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &LedgerStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LedgerStore) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS ledger_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS capabilities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			generation INTEGER NOT NULL,
			active INTEGER NOT NULL,
			data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_capabilities_kind_name ON capabilities(kind, name);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_capabilities_active
			ON capabilities(kind, name) WHERE active = 1;
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func load(ctx context.Context, q querier) (ledger.State, error) {
	state := ledger.State{Version: ledger.SchemaVersion}

	var updated sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT version, generation, updated_at FROM ledger_meta WHERE id = 1`,
	).Scan(&state.Version, &state.Generation, &updated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, errors.Join(ErrQueryFailed, err)
	}
	if updated.Valid {
		state.UpdatedAt = updated.Time
	}

	rows, err := q.QueryContext(ctx, `SELECT data FROM capabilities ORDER BY seq`)
	if err != nil {
		return ledger.State{}, errors.Join(ErrQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return ledger.State{}, errors.Join(ErrQueryFailed, err)
		}
		var d capability.Descriptor
		if err := json.Unmarshal(data, &d); err != nil {
			return ledger.State{}, errors.Join(ledger.ErrCorrupt, err)
		}
		state.Descriptors = append(state.Descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return ledger.State{}, errors.Join(ErrQueryFailed, err)
	}
	return state, nil
}

// Load reads the ledger.
func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	return load(ctx, s.db)
}

// Update runs fn inside an immediate transaction.
func (s *LedgerStore) Update(ctx context.Context, fn func(*ledger.State) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(ErrConnectionFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := load(ctx, tx)
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

	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_meta (id, version, generation, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version,
			generation = excluded.generation, updated_at = excluded.updated_at`,
		ledger.SchemaVersion, next.Generation, next.UpdatedAt,
	); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}

	// Deactivate first so the partial unique index never sees two active rows.
	for _, d := range next.Descriptors {
		if d.Active() {
			continue
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE capabilities SET active = 0, data = ? WHERE id = ?`, data, d.ID,
		); err != nil {
			return errors.Join(ErrQueryFailed, err)
		}
	}
	for _, d := range next.Descriptors[len(current.Descriptors):] {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO capabilities (id, kind, name, generation, active, data)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.ID, string(d.Kind), d.Name, d.Generation, boolToInt(d.Active()), data,
		); err != nil {
			return errors.Join(ErrQueryFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
