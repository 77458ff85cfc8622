package db

import (
	"fmt"
	"time"
)

// CountDocuments returns the number of staged documents, recorded in a
// backup's metadata at creation (spec §4.11). Restore does not reopen the
// database to recount; it reports the count stored in the metadata.
func (d *DB) CountDocuments() (int, error) {
	var n int
	if err := d.sql.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("db: count documents: %w", err)
	}
	return n, nil
}

// AuditRow mirrors AuditEntry for persistence (spec §3, §4.4).
type AuditRow struct {
	OccurredAt time.Time
	SourceKind string // "desktop" | "mobile"
	DeviceID   string
	ProfileID  string
	Action     string
	Entity     string
}

// InsertAuditBatch inserts all rows in a single transaction, preserving
// insertion order (spec §5: "Audit events are flushed in insertion order
// within a single flush").
func (d *DB) InsertAuditBatch(rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("db: begin audit batch: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO audit_log (occurred_at, source_kind, device_id, profile_id, action, entity)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("db: prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.OccurredAt.UTC().Format(time.RFC3339), r.SourceKind, nullable(r.DeviceID), nullable(r.ProfileID), r.Action, r.Entity); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: insert audit row: %w", err)
		}
	}
	return tx.Commit()
}

// PruneAuditOlderThan deletes audit rows older than cutoff, per spec §4.4
// ("pruned after 90 days when a flush happens").
func (d *DB) PruneAuditOlderThan(cutoff time.Time) (int64, error) {
	res, err := d.sql.Exec("DELETE FROM audit_log WHERE occurred_at < ?", cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("db: prune audit: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// DeviceRow mirrors PairedDevice for persistence.
type DeviceRow struct {
	DeviceID    string
	DeviceName  string
	DeviceModel string
	PairedAt    time.Time
	LastSeen    time.Time
	IsRevoked   bool
}

// LoadDevices returns all persisted device records, for loading into the
// device registry on profile unlock (spec §3: "Persisted per-profile in
// the encrypted DB; loaded into C6 on profile unlock").
func (d *DB) LoadDevices() ([]DeviceRow, error) {
	rows, err := d.sql.Query(`SELECT device_id, device_name, device_model, paired_at, last_seen, is_revoked FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("db: load devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceRow
	for rows.Next() {
		var r DeviceRow
		var pairedAt, lastSeen string
		var revoked int
		if err := rows.Scan(&r.DeviceID, &r.DeviceName, &r.DeviceModel, &pairedAt, &lastSeen, &revoked); err != nil {
			return nil, fmt.Errorf("db: scan device row: %w", err)
		}
		r.PairedAt, _ = time.Parse(time.RFC3339, pairedAt)
		r.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		r.IsRevoked = revoked != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDevice persists a device record (insert or update by device_id).
func (d *DB) UpsertDevice(r DeviceRow) error {
	_, err := d.sql.Exec(`
		INSERT INTO devices (device_id, device_name, device_model, paired_at, last_seen, is_revoked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			device_name=excluded.device_name,
			device_model=excluded.device_model,
			last_seen=excluded.last_seen,
			is_revoked=excluded.is_revoked
	`, r.DeviceID, r.DeviceName, r.DeviceModel, r.PairedAt.UTC().Format(time.RFC3339), r.LastSeen.UTC().Format(time.RFC3339), boolToInt(r.IsRevoked))
	if err != nil {
		return fmt.Errorf("db: upsert device: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CriticalAlert is a lab row crossing a critical abnormal-flag threshold
// (spec §8 scenario 6).
type CriticalAlert struct {
	ID           string
	TestName     string
	Value        float64
	RangeLow     float64
	RangeHigh    float64
	AbnormalFlag string
	RecordedAt   time.Time
}

// FetchCriticalAlerts returns undismissed critical lab results.
func (d *DB) FetchCriticalAlerts() ([]CriticalAlert, error) {
	rows, err := d.sql.Query(`
		SELECT id, test_name, value, range_low, range_high, abnormal_flag, recorded_at
		FROM lab_results
		WHERE abnormal_flag LIKE 'critical_%' AND dismissed_at IS NULL
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("db: fetch critical alerts: %w", err)
	}
	defer rows.Close()

	var out []CriticalAlert
	for rows.Next() {
		var a CriticalAlert
		var recordedAt string
		if err := rows.Scan(&a.ID, &a.TestName, &a.Value, &a.RangeLow, &a.RangeHigh, &a.AbnormalFlag, &recordedAt); err != nil {
			return nil, fmt.Errorf("db: scan critical alert: %w", err)
		}
		a.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DismissCriticalAlert marks a critical alert dismissed with a mandatory,
// non-empty reason (spec §8 scenario 6: ConfirmDismissal{reason}).
func (d *DB) DismissCriticalAlert(id string, reason string) error {
	res, err := d.sql.Exec(`
		UPDATE lab_results SET dismissed_at = ?, dismissal_reason = ?
		WHERE id = ? AND dismissed_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339), reason, id)
	if err != nil {
		return fmt.Errorf("db: dismiss critical alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db: dismiss critical alert: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("db: critical alert %s not found or already dismissed", id)
	}
	return nil
}

// JournalEntry is a single patient/caregiver journal record. Journal
// entries are one of the few write surfaces the mobile companion is
// allowed (spec §1 Non-goals).
type JournalEntry struct {
	ID         string
	Body       string
	RecordedAt time.Time
	Source     string // "desktop" | "mobile:<device_id>"
}

// InsertJournalEntry appends a journal entry.
func (d *DB) InsertJournalEntry(e JournalEntry) error {
	_, err := d.sql.Exec(`INSERT INTO journal_entries (id, body, recorded_at, source) VALUES (?, ?, ?, ?)`,
		e.ID, e.Body, e.RecordedAt.UTC().Format(time.RFC3339), e.Source)
	if err != nil {
		return fmt.Errorf("db: insert journal entry: %w", err)
	}
	return nil
}

// JournalHistory returns journal entries newest first.
func (d *DB) JournalHistory(limit int) ([]JournalEntry, error) {
	rows, err := d.sql.Query(`SELECT id, body, recorded_at, source FROM journal_entries ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: journal history: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.Body, &recordedAt, &e.Source); err != nil {
			return nil, fmt.Errorf("db: scan journal entry: %w", err)
		}
		e.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
