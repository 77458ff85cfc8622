// Package corestate implements C8: the transport-agnostic shared state
// composed from every other component, borrowed concurrently by IPC (the
// desktop's own process) and HTTP (C9/C10, serving the phone). Grounded
// on original_source's core_state.rs — its RwLock-over-session plus
// Mutex-over-last-activity split is carried over directly, generalized
// from Rust's RwLock/Mutex to Go's sync.RWMutex/sync.Mutex.
package corestate

import (
	"sync"
	"time"

	"github.com/ktiyab/coheara/internal/audit"
	"github.com/ktiyab/coheara/internal/coherr"
	"github.com/ktiyab/coheara/internal/config"
	"github.com/ktiyab/coheara/internal/cryptoutil"
	"github.com/ktiyab/coheara/internal/db"
	"github.com/ktiyab/coheara/internal/devices"
	"github.com/ktiyab/coheara/internal/obslog"
	"github.com/ktiyab/coheara/internal/pairing"
	"github.com/ktiyab/coheara/internal/profilestore"
	"github.com/ktiyab/coheara/internal/session"
)

// State is the single shared instance handed to every transport. Wrap it
// in one pointer at startup; both the IPC layer and the HTTP router share
// it.
type State struct {
	cfg   config.Config
	log   obslog.Logger
	Store *profilestore.Store

	mu      sync.RWMutex
	active  *session.Session
	db      *db.DB
	devices *devices.Registry
	pairing *pairing.Coordinator
	audit   *audit.Logger

	Cache *session.Cache

	lastActivityMu sync.Mutex
	lastActivity   time.Time

	// TransferServer, DistributionServer, and MobileAPIServer are the LAN
	// and HTTP server handles (spec §4.9's C12, C9/C10/C11), each
	// independently startable/stoppable without touching the session
	// lock.
	TransferServer     ServerSlot
	DistributionServer ServerSlot
	MobileAPIServer    ServerSlot
}

// New builds an empty (locked) State.
func New(cfg config.Config, store *profilestore.Store, log obslog.Logger) *State {
	return &State{
		cfg:          cfg,
		log:          log,
		Store:        store,
		Cache:        session.NewCache(session.CacheConfig{}),
		lastActivity: time.Now(),
	}
}

// Unlock installs a freshly opened profile as the active session: opens
// its encrypted database, hydrates the device registry and pairing
// coordinator, and starts a fresh audit logger bound to that database.
// Also dual-writes into the session cache so a companion device's
// reconnect doesn't force a redundant unlock (spec §4.3's MP-01 pattern).
func (s *State) Unlock(opened *profilestore.OpenResult) error {
	handle, err := db.Open(opened.DBPath, opened.MasterKey)
	if err != nil {
		return err
	}

	reg := devices.NewRegistry()
	reg.SetMaxDevices(s.cfg.Devices.MaxPaired)
	rows, err := handle.LoadDevices()
	if err != nil {
		handle.Close()
		return err
	}
	reg.LoadFromPersisted(adaptDeviceRows(rows))

	sess := session.New(opened)

	s.mu.Lock()
	if s.audit != nil {
		s.audit.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	s.active = sess
	s.db = handle
	s.devices = reg
	s.audit = audit.NewLogger(handle)
	s.pairing = pairing.New(s.cfg.Pairing, reg, sess.Name(), s.currentMasterKeyLocked, s.log)
	s.mu.Unlock()

	s.Cache.Put(sess)
	s.touch()
	s.log.Info("profile unlocked", obslog.String("profile_id", sess.ProfileID().String()))
	return nil
}

// currentMasterKeyLocked is handed to the pairing coordinator as its
// getMasterKey callback. The coordinator only calls it mid-handshake,
// already holding no State lock, so this takes its own read lock.
func (s *State) currentMasterKeyLocked() (*cryptoutil.Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, false
	}
	return s.active.MasterKey()
}

// Lock clears the active session, flushing the audit buffer and closing
// the database first. The session cache is cleared too, matching
// core_state.rs's set_session/clear behavior (a lock revokes companion
// access to the cached key, not just the desktop's own handle).
func (s *State) Lock() {
	s.mu.Lock()
	if s.audit != nil {
		s.audit.Close()
		s.audit = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	if s.pairing != nil {
		s.pairing.Close()
		s.pairing = nil
	}
	s.active = nil
	s.devices = nil
	s.mu.Unlock()

	s.Cache.Close()
	s.Cache = session.NewCache(session.CacheConfig{})
	s.log.Info("profile locked")
}

// Active returns the currently unlocked session, or ErrNoActiveSession.
func (s *State) Active() (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, coherr.ErrNoActiveSession
	}
	return s.active, nil
}

// OpenDB returns the active session's database handle.
func (s *State) OpenDB() (*db.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, coherr.ErrNoActiveSession
	}
	return s.db, nil
}

// Devices returns the active device registry.
func (s *State) Devices() (*devices.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.devices == nil {
		return nil, coherr.ErrNoActiveSession
	}
	return s.devices, nil
}

// Pairing returns the active pairing coordinator.
func (s *State) Pairing() (*pairing.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pairing == nil {
		return nil, coherr.ErrNoActiveSession
	}
	return s.pairing, nil
}

// LogAccess records an audit event for the active profile, auto-flushing
// to the database once the in-memory buffer reaches capacity (spec §4.4).
func (s *State) LogAccess(e audit.Entry) {
	s.mu.RLock()
	logger := s.audit
	s.mu.RUnlock()
	if logger == nil {
		return
	}
	logger.Log(e)
}

func adaptDeviceRows(rows []db.DeviceRow) []devices.PersistedDevice {
	out := make([]devices.PersistedDevice, 0, len(rows))
	for _, r := range rows {
		out = append(out, devices.PersistedDevice{
			DeviceID:    r.DeviceID,
			DeviceName:  r.DeviceName,
			DeviceModel: r.DeviceModel,
			PairedAt:    r.PairedAt,
			LastSeen:    r.LastSeen,
			IsRevoked:   r.IsRevoked,
		})
	}
	return out
}
