package ledger

import "context"

// Store persists ledger State.
//
// Update runs fn against the current state inside one serializable
// read-modify-write. If fn returns an error nothing is persisted. Implementations
// must make the new state durable before Update returns and must never expose a
// partially written state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Update(ctx context.Context, fn func(*State) error) error
	Close() error
}
