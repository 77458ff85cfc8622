// Package cryptoutil implements C1: password/mnemonic key derivation and
// AEAD primitives, grounded on the teacher's crypto/keys key-pair wrapper
// shape (crypto/keys/x25519.go) and original_source's crypto/profile.rs for
// the exact KDF choices.
package cryptoutil

import "crypto/subtle"

// KeySize is the width of a master/profile key in bytes (256 bits).
const KeySize = 32

// Key is a 32-byte symmetric key. It forbids copying by convention (always
// pass *Key), zeroizes on Close, and never exposes its bytes through
// fmt/GoString so a stray %v or %+v can't leak it into a log line.
type Key struct {
	bytes [KeySize]byte
	freed bool
}

// NewKey wraps raw into a Key, copying the bytes so the caller's slice can
// be zeroed independently.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	k := &Key{}
	copy(k.bytes[:], raw)
	return k, nil
}

// Bytes returns a reference to the key's bytes for handing to the
// encrypted-DB layer (spec §5: "never exposed outside C1/C2/C3/C4 APIs
// except as &[u8; 32] references"). Callers must not retain the slice past
// the Key's lifetime.
func (k *Key) Bytes() *[KeySize]byte {
	return &k.bytes
}

// Equal does a constant-time comparison against another key.
func (k *Key) Equal(other *Key) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.bytes[:], other.bytes[:]) == 1
}

// Close zeroizes the key material. Safe to call more than once.
func (k *Key) Close() {
	if k.freed {
		return
	}
	for i := range k.bytes {
		k.bytes[i] = 0
	}
	k.freed = true
}

// String and GoString deliberately never print key bytes.
func (k *Key) String() string   { return "cryptoutil.Key{REDACTED}" }
func (k *Key) GoString() string { return "cryptoutil.Key{REDACTED}" }
