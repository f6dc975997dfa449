package types

import "errors"

// Sentinel errors forming the component error taxonomy. The REST layer maps
// these to status codes; components wrap them with context via fmt.Errorf and
// %w so errors.Is still matches.
var (
	// ErrNotFound covers unknown node/role/credential/schedule lookups.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed input: bad cron expressions, missing
	// required credential fields, unknown enum values.
	ErrValidation = errors.New("validation failed")

	// ErrConflict covers duplicate role assignments and active code-source
	// collisions.
	ErrConflict = errors.New("conflict")

	// ErrTokenInvalid is returned for unknown or already-consumed access
	// tokens. It never reveals which credential was targeted.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned when a token exists but its expiry has
	// passed. The token entry is removed regardless.
	ErrTokenExpired = errors.New("token expired")

	// ErrDecrypt is returned when ciphertext cannot be decrypted, either
	// from corruption or a key mismatch. There is no plaintext fallback.
	ErrDecrypt = errors.New("decryption failed")
)
