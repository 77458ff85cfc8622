package profilestore

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/cryptoutil"
)

// Recover derives the recovery key from phrase and authenticated-decrypts
// recovery_blob.enc to obtain master_key bytes.
//
// This preserves the original implementation's branch exactly (spec §9
// Open Questions): when password_blob.enc does NOT exist, master_key ==
// password_key, so the recovery blob's plaintext must additionally be
// checked against verification.enc to catch the case where recovery_blob
// decrypted successfully (recovery_key was right) but somehow doesn't
// match the password-side state. When password_blob.enc DOES exist, the
// password key no longer equals master_key, so verification.enc is wrapped
// under the *current password key*, not master_key — checking it against
// a just-recovered master_key would be comparing the wrong things, and the
// recovery blob's own AEAD authentication is already sufficient proof.
func (s *Store) Recover(id uuid.UUID, phrase string) (*OpenResult, error) {
	info, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}

	if !cryptoutil.ValidateRecoveryPhrase(phrase) {
		return nil, coherr.ErrWrongRecoveryPhrase
	}

	recoverySalt, err := os.ReadFile(s.recoverySaltPath(id))
	if err != nil {
		return nil, fmt.Errorf("profilestore: read recovery salt: %w", err)
	}

	recoveryKey, err := cryptoutil.DeriveMnemonicKey(phrase, recoverySalt)
	if err != nil {
		return nil, err
	}
	defer recoveryKey.Close()

	recoveryBlob, err := os.ReadFile(s.recoveryBlobPath(id))
	if err != nil {
		return nil, fmt.Errorf("profilestore: read recovery blob: %w", err)
	}

	masterBytes, err := cryptoutil.Decrypt(recoveryKey, cryptoutil.EncryptedBlob(recoveryBlob))
	if err != nil {
		if errors.Is(err, cryptoutil.ErrAuthFailed) {
			return nil, coherr.ErrWrongRecoveryPhrase
		}
		return nil, err
	}
	if len(masterBytes) != cryptoutil.KeySize {
		return nil, fmt.Errorf("profilestore: %w", coherr.ErrCorruptedProfile)
	}

	_, statErr := os.Stat(s.passwordBlobPath(id))
	passwordRotated := statErr == nil

	if !passwordRotated {
		verificationBlob, err := os.ReadFile(s.verificationPath(id))
		if err != nil {
			return nil, fmt.Errorf("profilestore: read verification blob: %w", err)
		}
		masterKeyCandidate, err := cryptoutil.NewKey(masterBytes)
		if err != nil {
			return nil, err
		}
		defer masterKeyCandidate.Close()
		if _, err := cryptoutil.Decrypt(masterKeyCandidate, cryptoutil.EncryptedBlob(verificationBlob)); err != nil {
			if errors.Is(err, cryptoutil.ErrAuthFailed) {
				return nil, fmt.Errorf("profilestore: %w", coherr.ErrCorruptedProfile)
			}
			return nil, err
		}
	}

	masterKey, err := cryptoutil.NewKey(masterBytes)
	if err != nil {
		return nil, err
	}
	return &OpenResult{Info: *info, MasterKey: masterKey, DBPath: s.databasePath(id)}, nil
}
