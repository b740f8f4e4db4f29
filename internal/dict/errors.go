package dict

import "errors"

// Sentinel errors returned by Table operations. Invariant violations
// (fingerprint mismatch on an unsafe iterator release, an unknown
// background job kind) are not represented here — those are
// programmer errors and panic instead of returning an error.
var (
	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = errors.New("dict: key already exists")

	// ErrKeyNotFound is returned by Delete and Unlink when the key is absent.
	ErrKeyNotFound = errors.New("dict: key not found")
)
