package apperr

import "errors"

// Sentinel errors shared across packages. Handlers map them to HTTP status
// codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNodeUnknown        = errors.New("node not registered")
	ErrNoSigningKey       = errors.New("no signing key held")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrMappingNotFound    = errors.New("schema mapping not found")
)
