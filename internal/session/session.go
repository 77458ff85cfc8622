// Package session implements C3 (the single unlocked-profile Session
// object) and C4 (the SessionCache that lets quick profile switching reuse
// already-derived master keys instead of re-deriving them).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/profilestore"
)

// Session wraps an unlocked profile's master key for the lifetime of an
// active lock-screen session. Close zeroizes the wrapped key; a Session
// must not be used after Close.
type Session struct {
	mu sync.RWMutex

	profileID uuid.UUID
	name      string
	dbPath    string
	masterKey *cryptoutil.Key

	unlockedAt time.Time
	closed     bool
}

// New wraps an OpenResult (from profilestore.Open/Recover) into a Session.
func New(opened *profilestore.OpenResult) *Session {
	return &Session{
		profileID:  opened.Info.ID,
		name:       opened.Info.Name,
		dbPath:     opened.DBPath,
		masterKey:  opened.MasterKey,
		unlockedAt: time.Now().UTC(),
	}
}

// ProfileID returns the profile this session unlocked.
func (s *Session) ProfileID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileID
}

// Name returns the profile's display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// DBPath returns the encrypted database path for this profile.
func (s *Session) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// UnlockedAt returns when this session was created.
func (s *Session) UnlockedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedAt
}

// MasterKey returns the wrapped master key. Callers must not Close it
// directly; Session owns its lifetime.
func (s *Session) MasterKey() (*cryptoutil.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false
	}
	return s.masterKey, true
}

// Closed reports whether this session has already been closed.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close zeroizes the wrapped master key. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.masterKey != nil {
		s.masterKey.Close()
	}
	s.closed = true
}
