// Package profilestore implements C2: the on-disk per-profile directory
// layout (salts, verification/recovery/password blobs, encrypted database,
// staged-artifact directories) and its lifecycle operations. Grounded on
// original_source/src-tauri/src/crypto/profile.rs, which this package
// follows file-for-file for directory shape and the exact constants
// (VERIFICATION_PLAINTEXT, 0o700 permissions, palette-of-8 color index).
package profilestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/obslog"
)

// verificationPlaintext is AEAD-encrypted under the password key to prove
// a submitted password derives the right key (spec §3).
const verificationPlaintext = "COHEARA_PROFILE_VERIFICATION_V1"

// paletteSize is the number of colors profiles cycle through (spec §3:
// "palette color index (creation_order mod 8)").
const paletteSize = 8

// ProfileInfo is the unencrypted, pre-unlock-visible profile record.
type ProfileInfo struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"created_at"`
	ManagedBy   *string    `json:"managed_by,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	ColorIndex  int        `json:"color_index"`
}

// Store manages the profiles-root directory and its profiles.json index.
type Store struct {
	profilesDir string

	mu sync.Mutex // guards profiles.json reads/writes

	log obslog.Logger
}

// New creates (if needed) the profiles-root directory and returns a Store
// over it.
func New(profilesDir string) (*Store, error) {
	if err := os.MkdirAll(profilesDir, 0o700); err != nil {
		return nil, fmt.Errorf("profilestore: create profiles dir: %w", err)
	}
	return &Store{profilesDir: profilesDir, log: obslog.Default()}, nil
}

func (s *Store) profileDir(id uuid.UUID) string {
	return filepath.Join(s.profilesDir, id.String())
}

func (s *Store) saltPath(id uuid.UUID) string         { return filepath.Join(s.profileDir(id), "salt.bin") }
func (s *Store) recoverySaltPath(id uuid.UUID) string  { return filepath.Join(s.profileDir(id), "recovery_salt.bin") }
func (s *Store) verificationPath(id uuid.UUID) string  { return filepath.Join(s.profileDir(id), "verification.enc") }
func (s *Store) recoveryBlobPath(id uuid.UUID) string  { return filepath.Join(s.profileDir(id), "recovery_blob.enc") }
func (s *Store) passwordBlobPath(id uuid.UUID) string  { return filepath.Join(s.profileDir(id), "password_blob.enc") }
func (s *Store) databasePath(id uuid.UUID) string      { return filepath.Join(s.profileDir(id), "database", "coheara.db") }

// DBPath returns the encrypted database path for a profile, for callers
// that already hold a derived key (e.g. backup/restore).
func (s *Store) DBPath(id uuid.UUID) string { return s.databasePath(id) }

// ProfileDir exposes the profile's root directory, for backup/erasure.
func (s *Store) ProfileDir(id uuid.UUID) string { return s.profileDir(id) }

func (s *Store) infoIndexPath() string { return filepath.Join(s.profilesDir, "profiles.json") }

// ListProfiles returns every ProfileInfo in creation order.
func (s *Store) ListProfiles() ([]ProfileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndexLocked()
}

func (s *Store) readIndexLocked() ([]ProfileInfo, error) {
	data, err := os.ReadFile(s.infoIndexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profilestore: read profiles.json: %w", err)
	}
	var infos []ProfileInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("profilestore: parse profiles.json: %w", err)
	}
	return infos, nil
}

func (s *Store) appendInfoLocked(info ProfileInfo) error {
	infos, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	infos = append(infos, info)
	return s.writeIndexLocked(infos)
}

func (s *Store) removeInfoLocked(id uuid.UUID) error {
	infos, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	filtered := infos[:0]
	for _, info := range infos {
		if info.ID != id {
			filtered = append(filtered, info)
		}
	}
	return s.writeIndexLocked(filtered)
}

func (s *Store) writeIndexLocked(infos []ProfileInfo) error {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return fmt.Errorf("profilestore: marshal profiles.json: %w", err)
	}
	tmp := s.infoIndexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("profilestore: write profiles.json: %w", err)
	}
	return os.Rename(tmp, s.infoIndexPath())
}

// findByName returns the profile with the given name, if any.
func (s *Store) findByName(name string) (*ProfileInfo, error) {
	infos, err := s.readIndexLocked()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Name == name {
			return &infos[i], nil
		}
	}
	return nil, nil
}

// FindByID returns the profile with the given id.
func (s *Store) FindByID(id uuid.UUID) (*ProfileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, err := s.readIndexLocked()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].ID == id {
			return &infos[i], nil
		}
	}
	return nil, coherr.ErrProfileNotFound
}
