package profilestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/db"
	"github.com/ktiyab/coheara/internal/obslog"
)

// Create builds a new profile directory tree, derives password and
// recovery keys, writes the verification and recovery blobs, initializes
// the encrypted database, and appends the ProfileInfo. Returns the info
// and the one-time recovery phrase (caller must display it once and
// Close() it). Failure partway through leaves a partially initialized
// directory; the spec does not require transactional creation across the
// filesystem (§4.2).
func (s *Store) Create(name, password string, managedBy *string, birthDate *time.Time) (*ProfileInfo, *cryptoutil.RecoveryPhrase, error) {
	s.mu.Lock()
	existing, err := s.readIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range existing {
		if p.Name == name {
			return nil, nil, coherr.ErrProfileExists
		}
	}

	id := uuid.New()
	dir := s.profileDir(id)

	for _, sub := range []string{"database", "vectors", "originals", "markdown", "exports"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, nil, fmt.Errorf("profilestore: create %s: %w", sub, err)
		}
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		s.log.Warn("profile directory chmod failed", obslog.String("profile_id", id.String()), obslog.Err(err))
	}

	salt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	recoverySalt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}

	passwordKey, err := cryptoutil.DerivePasswordKey(password, salt)
	if err != nil {
		return nil, nil, err
	}
	defer passwordKey.Close()

	phrase, err := cryptoutil.GenerateRecoveryPhrase()
	if err != nil {
		return nil, nil, err
	}
	recoveryKey, err := cryptoutil.DeriveMnemonicKey(phrase.String(), recoverySalt)
	if err != nil {
		phrase.Close()
		return nil, nil, err
	}
	defer recoveryKey.Close()

	if err := os.WriteFile(s.saltPath(id), salt, 0o600); err != nil {
		phrase.Close()
		return nil, nil, fmt.Errorf("profilestore: write salt: %w", err)
	}
	if err := os.WriteFile(s.recoverySaltPath(id), recoverySalt, 0o600); err != nil {
		phrase.Close()
		return nil, nil, fmt.Errorf("profilestore: write recovery salt: %w", err)
	}

	verification, err := cryptoutil.Encrypt(passwordKey, []byte(verificationPlaintext))
	if err != nil {
		phrase.Close()
		return nil, nil, err
	}
	if err := os.WriteFile(s.verificationPath(id), verification, 0o600); err != nil {
		phrase.Close()
		return nil, nil, fmt.Errorf("profilestore: write verification blob: %w", err)
	}

	// At creation, master_key == password_key (no password_blob.enc yet).
	masterBytes := passwordKey.Bytes()
	recoveryBlob, err := cryptoutil.Encrypt(recoveryKey, masterBytes[:])
	if err != nil {
		phrase.Close()
		return nil, nil, err
	}
	if err := os.WriteFile(s.recoveryBlobPath(id), recoveryBlob, 0o600); err != nil {
		phrase.Close()
		return nil, nil, fmt.Errorf("profilestore: write recovery blob: %w", err)
	}

	database, err := db.Open(s.databasePath(id), passwordKey)
	if err != nil {
		phrase.Close()
		return nil, nil, err
	}
	if err := database.Close(); err != nil {
		phrase.Close()
		return nil, nil, err
	}

	info := ProfileInfo{
		ID:         id,
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		ManagedBy:  managedBy,
		BirthDate:  birthDate,
		ColorIndex: len(existing) % paletteSize,
	}

	s.mu.Lock()
	err = s.appendInfoLocked(info)
	s.mu.Unlock()
	if err != nil {
		phrase.Close()
		return nil, nil, err
	}

	s.log.Info("profile created", obslog.String("profile_id", id.String()))
	return &info, phrase, nil
}
