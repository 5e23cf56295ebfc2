package auth

import "errors"

// Authentication errors map onto transport status codes:
// missing, malformed and unknown keys are Unauthenticated (no confirmation the
// key exists), revoked keys are PermissionDenied, store failures are Unavailable.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrStoreUnavailable = errors.New("API key store unavailable")
)
