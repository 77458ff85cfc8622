package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
)

// NonceSize is the AES-GCM standard 96-bit nonce.
const NonceSize = 12

// EncryptedBlob is nonce ∥ ciphertext ∥ tag, per spec §3. Serialized form
// is its raw bytes; framing is caller's responsibility.
type EncryptedBlob []byte

// Encrypt authenticates and encrypts plaintext under key with a fresh
// random nonce, returning nonce ∥ ct ∥ tag.
func Encrypt(key *Key, plaintext []byte) (EncryptedBlob, error) {
	block, err := aes.NewCipher(key.bytes[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := gcm.Seal(nonce, nonce, plaintext, nil)
	return EncryptedBlob(out), nil
}

// Decrypt authenticates and decrypts blob under key. Authentication
// failure is surfaced as ErrAuthFailed, distinct from any I/O or decoding
// error, with no timing side channel (the underlying GCM tag check is
// constant-time).
func Decrypt(key *Key, blob EncryptedBlob) ([]byte, error) {
	block, err := aes.NewCipher(key.bytes[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrInvalidBlob
	}

	nonce, ct := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
