package profilestore

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/obslog"
)

// DirSize walks a profile's directory tree and sums file sizes, used to
// report bytes_erased from cryptographic erasure (spec §4.14).
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("profilestore: walk %s: %w", root, err)
	}
	return total, nil
}

// VerifyPassword authenticates password against a profile's verification
// blob without returning key material, for erasure's confirmation gate
// (spec §4.14: "requires password re-entry").
func (s *Store) VerifyPassword(id uuid.UUID, password string) error {
	opened, err := s.Open(id, password)
	if err != nil {
		return err
	}
	opened.MasterKey.Close()
	return nil
}

// overwriteWithRandom best-effort fills a file with fresh random bytes of
// its current length before it is removed, so residual disk blocks don't
// carry key material forward. Best-effort: a missing file is not an error.
func overwriteWithRandom(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	junk := make([]byte, info.Size())
	if _, err := rand.Read(junk); err != nil {
		return err
	}
	return os.WriteFile(path, junk, 0o600)
}

// Delete performs cryptographic erasure of a profile: every file holding
// key material or key-wrapped secrets is overwritten with random bytes
// before the directory tree is removed, so recovery of the erased master
// key from disk residue is infeasible even if the directory removal
// itself is later undone by an external tool. Grounded on
// original_source/src-tauri/src/crypto/erase.rs's overwrite-then-remove
// sequence (spec §4.14).
func (s *Store) Delete(id uuid.UUID) error {
	if _, err := s.FindByID(id); err != nil {
		return err
	}

	for _, p := range []string{
		s.saltPath(id),
		s.recoverySaltPath(id),
		s.verificationPath(id),
		s.recoveryBlobPath(id),
		s.passwordBlobPath(id),
	} {
		if err := overwriteWithRandom(p); err != nil {
			s.log.Warn("overwrite before erase failed", obslog.String("path", p), obslog.Err(err))
		}
	}

	dir := s.profileDir(id)
	bytesErased, sizeErr := DirSize(dir)
	if sizeErr != nil {
		s.log.Warn("dir size measurement failed", obslog.Err(sizeErr))
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("profilestore: remove profile dir: %w", err)
	}

	s.mu.Lock()
	err := s.removeInfoLocked(id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Info("profile erased",
		obslog.String("profile_id", id.String()),
		obslog.Any("bytes_erased", bytesErased),
	)
	return nil
}
