package types

import "errors"

// Sentinel errors for the engine's error taxonomy. Validation errors are
// recoverable by the caller; integrity errors must never be auto-corrected.
var (
	// ErrNotFound indicates the requested record does not exist in the store
	ErrNotFound = errors.New("record not found")

	// ErrPasswordRequired indicates an encrypted payload was imported without a password
	ErrPasswordRequired = errors.New("password required for encrypted data")

	// ErrDecryptionFailed indicates a wrong password or tampered ciphertext.
	// The two cases are deliberately indistinguishable (AEAD tag mismatch).
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidPackage indicates a transfer package failed schema validation
	ErrInvalidPackage = errors.New("invalid transfer package")

	// ErrUnknownAction indicates an unrecognized duplicate-resolution action
	ErrUnknownAction = errors.New("unknown duplicate action")

	// ErrMissingResolution indicates a conflict was left without a resolution
	ErrMissingResolution = errors.New("missing conflict resolution")
)
