// Package audit implements C5: a fixed-capacity in-memory ring buffer of
// audit entries that is flushed to the encrypted per-profile database in
// one batch once it fills, and on a periodic timer regardless of fill
// level. Grounded on the background-ticker idiom in
// SAGE-X-project-sage/session/nonce.go, generalized from a replay-GC loop
// to a capacity-triggered flush.
package audit

import (
	"sync"
	"time"
)

// Capacity is the number of entries the in-memory buffer holds before a
// flush is signaled (spec §4.4).
const Capacity = 100

// RetainDays is how long persisted audit rows are kept before being
// pruned on a subsequent flush (spec §4.4).
const RetainDays = 90

// SourceKind values for Entry.SourceKind (spec §4.8 layer 4: "source =
// MobileDevice{...} if auth ran, otherwise DesktopIpc").
const (
	SourceDesktopIPC   = "desktop"
	SourceMobileDevice = "mobile"
)

// Entry is one audited action.
type Entry struct {
	OccurredAt time.Time
	SourceKind string // "desktop" | "mobile"
	DeviceID   string
	ProfileID  string
	Action     string
	Entity     string
}

// Buffer holds pending audit entries in insertion order. It neither bounds
// nor overwrites them: entries past Capacity keep accumulating until Drain.
// Log appends an entry and reports whether the buffer just reached
// capacity, so callers can trigger a flush without Buffer itself needing
// a reference to storage.
type Buffer struct {
	mu      sync.Mutex
	pending []Entry
}

// NewBuffer creates an empty Buffer pre-sized to Capacity.
func NewBuffer() *Buffer {
	return &Buffer{pending: make([]Entry, 0, Capacity)}
}

// Log appends an entry. It returns true exactly when this append filled
// the buffer to Capacity, signaling the caller should flush.
func (b *Buffer) Log(e Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, e)
	return len(b.pending) == Capacity
}

// Drain swaps out the pending slice under the lock and returns it,
// leaving a fresh empty slice in place. Because the swap happens before
// any I/O, a concurrent Log call during the subsequent flush always
// succeeds against the new (post-swap) slice rather than blocking on
// flush I/O (spec §9 Open Questions: audit flush re-entrancy).
func (b *Buffer) Drain() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.pending
	b.pending = make([]Entry, 0, Capacity)
	return drained
}

// Len reports the number of entries currently pending.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
