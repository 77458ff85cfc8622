package db

import "fmt"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lab_results (
	id TEXT PRIMARY KEY,
	test_name TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL,
	range_low REAL NOT NULL,
	range_high REAL NOT NULL,
	abnormal_flag TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	dismissed_at TEXT,
	dismissal_reason TEXT
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
	device_id TEXT PRIMARY KEY,
	device_name TEXT NOT NULL,
	device_model TEXT NOT NULL,
	paired_at TEXT NOT NULL,
	last_seen TEXT NOT NULL,
	is_revoked INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	occurred_at TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	device_id TEXT,
	profile_id TEXT,
	action TEXT NOT NULL,
	entity TEXT NOT NULL
);
`

func (d *DB) applySchema() error {
	if _, err := d.sql.Exec(schemaSQL); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	return nil
}
