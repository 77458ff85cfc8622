package profilestore

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/cryptoutil"
)

// OpenResult is the raw material session.NewSession wraps into a Session.
type OpenResult struct {
	Info      ProfileInfo
	MasterKey *cryptoutil.Key
	DBPath    string
}

// Open derives the password key from the submitted password, authenticates
// it against verification.enc, and resolves master_key: password_key
// itself if no password_blob.enc exists yet, or the blob's contents (the
// unwrap of the real master key) if the password has been rotated at
// least once (spec §4.2).
func (s *Store) Open(id uuid.UUID, password string) (*OpenResult, error) {
	info, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}

	salt, err := os.ReadFile(s.saltPath(id))
	if err != nil {
		return nil, fmt.Errorf("profilestore: read salt: %w", err)
	}

	passwordKey, err := cryptoutil.DerivePasswordKey(password, salt)
	if err != nil {
		return nil, err
	}

	verificationBlob, err := os.ReadFile(s.verificationPath(id))
	if err != nil {
		passwordKey.Close()
		return nil, fmt.Errorf("profilestore: read verification blob: %w", err)
	}
	if _, err := cryptoutil.Decrypt(passwordKey, cryptoutil.EncryptedBlob(verificationBlob)); err != nil {
		passwordKey.Close()
		if errors.Is(err, cryptoutil.ErrAuthFailed) {
			return nil, coherr.ErrWrongPassword
		}
		return nil, err
	}

	masterKey := passwordKey
	if passwordBlob, err := os.ReadFile(s.passwordBlobPath(id)); err == nil {
		wrapped, err := cryptoutil.Decrypt(passwordKey, cryptoutil.EncryptedBlob(passwordBlob))
		passwordKey.Close()
		if err != nil {
			return nil, fmt.Errorf("profilestore: %w", coherr.ErrCorruptedProfile)
		}
		if len(wrapped) != cryptoutil.KeySize {
			return nil, fmt.Errorf("profilestore: %w", coherr.ErrCorruptedProfile)
		}
		masterKey, err = cryptoutil.NewKey(wrapped)
		if err != nil {
			return nil, fmt.Errorf("profilestore: %w", coherr.ErrCorruptedProfile)
		}
	} else if !os.IsNotExist(err) {
		passwordKey.Close()
		return nil, fmt.Errorf("profilestore: read password blob: %w", err)
	}

	return &OpenResult{Info: *info, MasterKey: masterKey, DBPath: s.databasePath(id)}, nil
}
