// Package erasure implements C14: confirmation-gated, password-verified
// permanent deletion of a profile. Grounded on
// original_source/src-tauri/src/trust.rs::erase_profile_data, which this
// package follows step-for-step (confirmation text check, password
// verify, pre-deletion size accounting, delegate to the profile store's
// delete, report a cryptographically-zeroed key).
package erasure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/profilestore"
)

// countFiles walks a profile directory and counts regular files, mirroring
// the original's count_dir_contents pairing with DirSize.
func countFiles(root string) (int64, error) {
	var count int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("erasure: walk %s: %w", root, err)
	}
	return count, nil
}

// RequiredConfirmation is the exact string a caller must submit to
// proceed (spec §4.12: "Must type 'DELETE MY DATA' to confirm deletion").
const RequiredConfirmation = "DELETE MY DATA"

// Request is the erasure command's input.
type Request struct {
	ProfileID        uuid.UUID
	ConfirmationText string
	Password         string
}

// Result reports what was destroyed.
type Result struct {
	ProfileName  string
	FilesDeleted int64
	BytesErased  int64
	KeyZeroed    bool
}

// Erase validates the confirmation phrase and password, then permanently
// deletes the profile directory (salts, blobs, database, staged uploads).
// There is no soft-delete or recovery path once this returns nil error.
func Erase(store *profilestore.Store, req Request) (*Result, error) {
	if req.ConfirmationText != RequiredConfirmation {
		return nil, coherr.NewValidation("must type '" + RequiredConfirmation + "' to confirm deletion")
	}

	info, err := store.FindByID(req.ProfileID)
	if err != nil {
		return nil, err
	}

	if err := store.VerifyPassword(req.ProfileID, req.Password); err != nil {
		return nil, err
	}

	bytesErased, err := profilestore.DirSize(store.ProfileDir(req.ProfileID))
	if err != nil {
		return nil, err
	}
	filesDeleted, err := countFiles(store.ProfileDir(req.ProfileID))
	if err != nil {
		return nil, err
	}

	if err := store.Delete(req.ProfileID); err != nil {
		return nil, err
	}

	return &Result{
		ProfileName:  info.Name,
		FilesDeleted: filesDeleted,
		BytesErased:  bytesErased,
		KeyZeroed:    true,
	}, nil
}
