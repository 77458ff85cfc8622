package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheConfig bounds SessionCache behavior.
type CacheConfig struct {
	// IdleEviction is how long an unused cached Session survives before
	// the background sweep closes and evicts it.
	IdleEviction time.Duration
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

func withCacheDefaults(c CacheConfig) CacheConfig {
	if c.IdleEviction == 0 {
		c.IdleEviction = 15 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 30 * time.Second
	}
	return c
}

type cacheEntry struct {
	session    *Session
	lastTouch  time.Time
}

// Cache holds unlocked Sessions for multiple profiles, so switching the
// active profile does not force re-deriving a master key that is already
// held in memory. Grounded on manager.go's RWMutex-guarded map with a
// double-checked insert and a background cleanup ticker, generalized from
// single-session expiry to multi-profile idle eviction.
type Cache struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*cacheEntry
	cfg    CacheConfig

	stopSweep chan struct{}
	ticker    *time.Ticker
}

// NewCache creates a Cache and starts its background idle-eviction sweep.
func NewCache(cfg CacheConfig) *Cache {
	cfg = withCacheDefaults(cfg)
	c := &Cache{
		byID:      make(map[uuid.UUID]*cacheEntry),
		cfg:       cfg,
		stopSweep: make(chan struct{}),
		ticker:    time.NewTicker(cfg.SweepInterval),
	}
	go c.runSweep()
	return c
}

// Put inserts s into the cache, or returns the already-cached Session for
// the same profile if one raced it in (the new s is closed in that case,
// not double-unlocked-and-cached).
func (c *Cache) Put(s *Session) *Session {
	id := s.ProfileID()

	c.mu.RLock()
	if existing, ok := c.byID[id]; ok {
		c.mu.RUnlock()
		c.touch(id)
		return existing.session
	}
	c.mu.RUnlock()

	c.mu.Lock()
	if existing, ok := c.byID[id]; ok {
		c.mu.Unlock()
		s.Close()
		return existing.session
	}
	c.byID[id] = &cacheEntry{session: s, lastTouch: time.Now()}
	c.mu.Unlock()
	return s
}

// Get returns the cached Session for id, bumping its idle clock.
func (c *Cache) Get(id uuid.UUID) (*Session, bool) {
	c.mu.RLock()
	entry, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c.touch(id)
	return entry.session, true
}

func (c *Cache) touch(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byID[id]; ok {
		entry.lastTouch = time.Now()
	}
}

// Evict closes and removes the cached Session for id, if any.
func (c *Cache) Evict(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byID[id]; ok {
		entry.session.Close()
		delete(c.byID, id)
	}
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Close stops the sweep and evicts every cached Session.
func (c *Cache) Close() {
	close(c.stopSweep)
	c.ticker.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.byID {
		entry.session.Close()
	}
	c.byID = make(map[uuid.UUID]*cacheEntry)
}

func (c *Cache) runSweep() {
	for {
		select {
		case <-c.ticker.C:
			c.evictIdle()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) evictIdle() {
	cutoff := time.Now().Add(-c.cfg.IdleEviction)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.byID {
		if entry.lastTouch.Before(cutoff) {
			entry.session.Close()
			delete(c.byID, id)
		}
	}
}
