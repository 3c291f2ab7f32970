package store

import "database/sql"

const schemaVersion = 1

// Timestamps are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	description TEXT
);

-- ============================================================
-- ENTITIES
-- ============================================================

CREATE TABLE IF NOT EXISTS entities (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	title         TEXT NOT NULL,
	description   TEXT,
	status        TEXT NOT NULL DEFAULT 'active',
	priority      TEXT NOT NULL DEFAULT 'medium',
	category      TEXT,
	tags_json     TEXT,
	metadata_json TEXT,
	parent_id     TEXT,
	owner         TEXT,
	source        TEXT,
	source_id     TEXT,
	due_date      INTEGER,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(status);
CREATE INDEX IF NOT EXISTS idx_entities_owner ON entities(owner);
CREATE INDEX IF NOT EXISTS idx_entities_due ON entities(due_date);

-- ============================================================
-- METRICS
-- ============================================================

CREATE TABLE IF NOT EXISTS metrics (
	id          TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       REAL NOT NULL,
	unit        TEXT,
	period      TEXT,
	recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_key ON metrics(key, recorded_at);
CREATE INDEX IF NOT EXISTS idx_metrics_category ON metrics(category, recorded_at);

-- ============================================================
-- AUDIT
-- ============================================================

CREATE TABLE IF NOT EXISTS activities (
	id           TEXT PRIMARY KEY,
	entity_id    TEXT,
	action       TEXT NOT NULL,
	actor        TEXT,
	channel      TEXT NOT NULL,
	details_json TEXT,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_entity ON activities(entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at DESC);

CREATE TABLE IF NOT EXISTS commands (
	id          TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	intent_json TEXT NOT NULL,
	message     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
`

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	if !current.Valid || int(current.Int64) < version {
		_, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version,
			description,
		)
		return err
	}
	return nil
}
