package audit

import (
	"sync"
	"time"

	"github.com/ktiyab/coheara/internal/db"
	"github.com/ktiyab/coheara/internal/metrics"
	"github.com/ktiyab/coheara/internal/obslog"
)

// FlushInterval is how often Logger flushes the buffer on a timer even if
// it never reaches Capacity, so entries don't linger unpersisted across a
// long idle session (spec §4.4).
const FlushInterval = 5 * time.Minute

// Logger owns a Buffer plus the background timer and storage binding that
// turn it into durable audit history.
type Logger struct {
	buf *Buffer
	db  *db.DB
	log obslog.Logger

	mu        sync.Mutex // serializes flush calls (capacity-trigger vs timer)
	stop      chan struct{}
	ticker    *time.Ticker
	closeOnce sync.Once
}

// NewLogger creates a Logger writing through to store and starts its
// periodic flush timer.
func NewLogger(store *db.DB) *Logger {
	l := &Logger{
		buf:    NewBuffer(),
		db:     store,
		log:    obslog.Default(),
		stop:   make(chan struct{}),
		ticker: time.NewTicker(FlushInterval),
	}
	go l.runTimer()
	return l
}

// Log records an audited action, flushing immediately if this entry fills
// the buffer to Capacity.
func (l *Logger) Log(e Entry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if l.buf.Log(e) {
		l.flush()
	}
}

func (l *Logger) runTimer() {
	for {
		select {
		case <-l.ticker.C:
			l.flush()
		case <-l.stop:
			return
		}
	}
}

// flush drains the buffer and persists the batch, then prunes rows older
// than RetainDays. Serialized by mu so the capacity-triggered flush and
// the timer-triggered flush never race each other's DB writes; Buffer's
// own lock (inside Drain) is independent and released before I/O starts.
func (l *Logger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.buf.Drain()
	if len(entries) == 0 {
		return
	}

	rows := make([]db.AuditRow, len(entries))
	for i, e := range entries {
		rows[i] = db.AuditRow{
			OccurredAt: e.OccurredAt,
			SourceKind: e.SourceKind,
			DeviceID:   e.DeviceID,
			ProfileID:  e.ProfileID,
			Action:     e.Action,
			Entity:     e.Entity,
		}
	}
	if err := l.db.InsertAuditBatch(rows); err != nil {
		l.log.Error("audit flush failed", obslog.Err(err), obslog.Any("dropped_entries", len(rows)))
		return
	}
	metrics.RecordAuditFlush(len(rows))

	cutoff := time.Now().UTC().AddDate(0, 0, -RetainDays)
	if _, err := l.db.PruneAuditOlderThan(cutoff); err != nil {
		l.log.Warn("audit prune failed", obslog.Err(err))
	}
}

// Flush forces an immediate flush, for shutdown paths that must not lose
// pending entries.
func (l *Logger) Flush() {
	l.flush()
}

// Close stops the timer and performs one final flush.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.ticker.Stop()
		l.flush()
	})
}
