package pairing

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/ktiyab/coheara/internal/cryptoutil"
)

// handshakeInfo labels the HKDF expansion so a device-wrapping key can
// never be confused with any other secret derived from the same ECDH
// output. Mirrors the domain-separation labels used by deriveHKDFKey in
// SAGE-X-project-sage's crypto/keys/x25519.go. The tag names only the key
// agreement and KDF (X25519, HKDF-SHA256); the master key is sealed with
// cryptoutil.Encrypt, and the handshake runs over plain crypto/ecdh rather
// than a full HPKE context.
const handshakeInfo = "coheara-pairing-v1/X25519-HKDF-SHA256"

// generateEphemeralKeypair creates the desktop's one-shot X25519 keypair,
// minted fresh at Start and discarded the moment the slot closes.
func generateEphemeralKeypair() (*ecdh.PrivateKey, error) {
	return ecdh.X25519().GenerateKey(rand.Reader)
}

// deriveWrappingKey runs X25519 ECDH between the desktop's ephemeral
// private key and the phone's submitted public key, then HKDF-expands the
// shared point into a 32-byte AEAD key scoped to this one pairing (token
// folded into the HKDF salt so two concurrent pairings, however
// impossible under the single-slot design, could never collide).
func deriveWrappingKey(priv *ecdh.PrivateKey, peerPub []byte, token string) (*cryptoutil.Key, error) {
	peer, err := ecdh.X25519().NewPublicKey(peerPub)
	if err != nil {
		return nil, fmt.Errorf("pairing: invalid device public key: %w", err)
	}

	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("pairing: ecdh failed: %w", err)
	}
	defer zero(shared)

	salt := sha256.Sum256([]byte(token))
	kdf := hkdf.New(sha256.New, shared, salt[:], []byte(handshakeInfo))

	raw := make([]byte, cryptoutil.KeySize)
	if _, err := io.ReadFull(kdf, raw); err != nil {
		return nil, fmt.Errorf("pairing: hkdf expand failed: %w", err)
	}
	defer zero(raw)

	return cryptoutil.NewKey(raw)
}

// wrapMasterKey AEAD-encrypts the profile's master key bytes under a
// pairing-scoped device-wrapping key, so only the phone holding the
// matching ECDH private key can recover it.
func wrapMasterKey(wrappingKey *cryptoutil.Key, masterKey *cryptoutil.Key) (cryptoutil.EncryptedBlob, error) {
	mk := masterKey.Bytes()
	return cryptoutil.Encrypt(wrappingKey, mk[:])
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
