package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// SaltSize is the length of both salt.bin and recovery_salt.bin (spec §3).
const SaltSize = 16

// PasswordIterations is the PBKDF2 work factor. Spec §4.1 requires at
// least 600,000 iterations of a SHA-256-based PBKDF.
const PasswordIterations = 600_000

// mnemonicHKDFInfo domain-separates the recovery-phrase KDF from any other
// HKDF use in the codebase (the pairing handshake uses its own label).
const mnemonicHKDFInfo = "COHEARA_RECOVERY_KEY_V1"

// GenerateSalt returns 16 fresh random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DerivePasswordKey derives a 32-byte key from password and salt via
// PBKDF2-HMAC-SHA256. Deriving twice over the same (password, salt) always
// yields the same bytes.
func DerivePasswordKey(password string, salt []byte) (*Key, error) {
	if len(salt) != SaltSize {
		return nil, ErrInvalidSaltLength
	}
	raw := pbkdf2.Key([]byte(password), salt, PasswordIterations, KeySize, sha256.New)
	defer zero(raw)
	return NewKey(raw)
}

// DeriveMnemonicKey derives a 32-byte key from a normalized recovery phrase
// and recovery_salt via HKDF-SHA256. phrase must already have passed
// ValidateRecoveryPhrase.
func DeriveMnemonicKey(phrase string, recoverySalt []byte) (*Key, error) {
	if len(recoverySalt) != SaltSize {
		return nil, ErrInvalidSaltLength
	}
	normalized := NormalizePhrase(phrase)

	reader := hkdf.New(sha256.New, []byte(normalized), recoverySalt, []byte(mnemonicHKDFInfo))
	raw := make([]byte, KeySize)
	if _, err := reader.Read(raw); err != nil {
		return nil, err
	}
	defer zero(raw)
	return NewKey(raw)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
