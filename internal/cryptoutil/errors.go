package cryptoutil

import "errors"

var (
	// ErrInvalidKeyLength is returned by NewKey for the wrong byte count.
	ErrInvalidKeyLength = errors.New("cryptoutil: key must be 32 bytes")
	// ErrAuthFailed is returned by Decrypt on AEAD tag mismatch. Never
	// conflated with a decoding/IO error by callers.
	ErrAuthFailed = errors.New("cryptoutil: authentication failed")
	// ErrInvalidBlob is returned when a blob is too short to contain a
	// nonce and tag.
	ErrInvalidBlob = errors.New("cryptoutil: encrypted blob too short")
	// ErrInvalidSaltLength is returned by derivation functions.
	ErrInvalidSaltLength = errors.New("cryptoutil: salt must be 16 bytes")
	// ErrInvalidPhrase is returned when a recovery phrase fails validation.
	ErrInvalidPhrase = errors.New("cryptoutil: invalid recovery phrase")
)
