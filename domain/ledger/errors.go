package ledger

import "errors"

// Domain errors for the registration ledger.
var (
	// ErrCorrupt indicates persisted ledger state could not be decoded.
	ErrCorrupt = errors.New("ledger state corrupt")

	// ErrGenerationRegressed indicates a store tried to persist a lower generation.
	ErrGenerationRegressed = errors.New("ledger generation regressed")

	// ErrClosed indicates the store was used after Close.
	ErrClosed = errors.New("ledger store closed")

	// ErrNotFound indicates no descriptor matched a lookup.
	ErrNotFound = errors.New("descriptor not found")
)
