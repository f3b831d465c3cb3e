package signal

import "errors"

// Domain errors for lifecycle signals.
var (
	// ErrSignalParse indicates a lifecycle payload could not be decoded.
	ErrSignalParse = errors.New("malformed lifecycle signal")

	// ErrEmptyPayload indicates the payload carried no bytes.
	ErrEmptyPayload = errors.New("empty lifecycle signal payload")
)
