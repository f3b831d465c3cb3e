package capability

import "errors"

// Domain errors for capabilities.
var (
	// ErrInvalidName indicates a capability name is not a valid slug.
	ErrInvalidName = errors.New("invalid capability name")

	// ErrInvalidKind indicates an unknown capability kind.
	ErrInvalidKind = errors.New("invalid capability kind")

	// ErrWildcardPermission indicates a permission set contains a wildcard.
	ErrWildcardPermission = errors.New("permissions must be enumerated, not wildcarded")

	// ErrPayloadMismatch indicates the kind-specific payload does not match the kind.
	ErrPayloadMismatch = errors.New("capability payload does not match kind")

	// ErrDuplicateName indicates an active capability of the same kind already uses the name.
	ErrDuplicateName = errors.New("capability name already in use")

	// ErrArtifactMissing indicates the capability definition file does not exist.
	ErrArtifactMissing = errors.New("capability artifact missing")

	// ErrMalformedArtifact indicates the capability definition file cannot be used.
	ErrMalformedArtifact = errors.New("capability artifact malformed")

	// ErrSpawn indicates the host process could not be launched.
	ErrSpawn = errors.New("host process spawn failed")
)
