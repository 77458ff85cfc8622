package db

import (
	"fmt"
	"os"

	"github.com/ktiyab/coheara/internal/cryptoutil"
)

// decryptToTemp reads the EncryptedBlob at path, authenticates and decrypts
// it under key, and writes the plaintext to tempPath (0600, owner-only).
func decryptToTemp(path, tempPath string, key *cryptoutil.Key) error {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("db: read sealed database: %w", err)
	}
	plaintext, err := cryptoutil.Decrypt(key, cryptoutil.EncryptedBlob(ciphertext))
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if err := os.WriteFile(tempPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("db: write temp database: %w", err)
	}
	return nil
}

// encryptFromTemp reads tempPath's plaintext, seals it under key, and
// atomically replaces path with the ciphertext.
func encryptFromTemp(tempPath, path string, key *cryptoutil.Key) error {
	plaintext, err := os.ReadFile(tempPath)
	if err != nil {
		return fmt.Errorf("db: read temp database: %w", err)
	}
	blob, err := cryptoutil.Encrypt(key, plaintext)
	if err != nil {
		return fmt.Errorf("db: seal database: %w", err)
	}
	tmpTarget := path + ".sealing"
	if err := os.WriteFile(tmpTarget, blob, 0o600); err != nil {
		return fmt.Errorf("db: write sealed database: %w", err)
	}
	return os.Rename(tmpTarget, path)
}
