package config

import "errors"

// Lookup failures.
var (
	// ErrFileNotFound is returned when an explicitly named file does not exist.
	ErrFileNotFound = errors.New("phoenix config: file does not exist")

	// ErrNoDefaultFile is returned when none of the default file names exists in the searched directory.
	ErrNoDefaultFile = errors.New("phoenix config: no phoenix file")
)

// Decode and check failures.
var (
	ErrUnknownFormat = errors.New("phoenix config: extension is not yaml, json or toml")
	ErrMalformed     = errors.New("phoenix config: cannot decode")
	ErrInvalid       = errors.New("phoenix config: rejected by validation")
	ErrUnsetVariable = errors.New("phoenix config: referenced variable is unset")
	ErrSchema        = errors.New("phoenix config: cannot reflect schema")
)
