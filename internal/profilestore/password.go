package profilestore

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/obslog"
)

// ChangePassword verifies the current password, derives a new salt and
// password key, rewraps the unchanged master_key under it, and rewrites
// verification.enc. The recovery blob is never touched, so the recovery
// phrase continues to unwrap the same master_key (spec §4.2).
func (s *Store) ChangePassword(id uuid.UUID, oldPassword, newPassword string) error {
	opened, err := s.Open(id, oldPassword)
	if err != nil {
		return err
	}
	defer opened.MasterKey.Close()

	newSalt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return err
	}
	newPasswordKey, err := cryptoutil.DerivePasswordKey(newPassword, newSalt)
	if err != nil {
		return err
	}
	defer newPasswordKey.Close()

	newVerification, err := cryptoutil.Encrypt(newPasswordKey, []byte(verificationPlaintext))
	if err != nil {
		return err
	}

	masterBytes := opened.MasterKey.Bytes()
	newPasswordBlob, err := cryptoutil.Encrypt(newPasswordKey, masterBytes[:])
	if err != nil {
		return err
	}

	// Stage the new salt and blobs as .new files first, so a failure while
	// staging leaves the old password still functional. The three renames
	// below are not atomic as a group: a failure between the first and the
	// last rename can leave the profile unopenable by either password (the
	// recovery blob is untouched).
	if err := os.WriteFile(s.saltPath(id)+".new", newSalt, 0o600); err != nil {
		return fmt.Errorf("profilestore: stage new salt: %w", err)
	}
	if err := os.WriteFile(s.verificationPath(id)+".new", newVerification, 0o600); err != nil {
		return fmt.Errorf("profilestore: stage new verification: %w", err)
	}
	if err := os.WriteFile(s.passwordBlobPath(id)+".new", newPasswordBlob, 0o600); err != nil {
		return fmt.Errorf("profilestore: stage new password blob: %w", err)
	}

	if err := os.Rename(s.saltPath(id)+".new", s.saltPath(id)); err != nil {
		return fmt.Errorf("profilestore: commit new salt: %w", err)
	}
	if err := os.Rename(s.verificationPath(id)+".new", s.verificationPath(id)); err != nil {
		return fmt.Errorf("profilestore: commit new verification: %w", err)
	}
	if err := os.Rename(s.passwordBlobPath(id)+".new", s.passwordBlobPath(id)); err != nil {
		return fmt.Errorf("profilestore: commit new password blob: %w", err)
	}

	s.log.Info("password changed", obslog.String("profile_id", id.String()))
	return nil
}
