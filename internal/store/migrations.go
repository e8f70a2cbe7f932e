package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
// Timestamps are stored as Unix nanoseconds.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS watermarks (
	stream     TEXT PRIMARY KEY,
	checkpoint INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS dedup_ledger (
	item_id     TEXT PRIMARY KEY,
	notified_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dedup_ledger_notified_at ON dedup_ledger(notified_at);

CREATE TABLE IF NOT EXISTS pipeline_statuses (
	key         TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	observed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS connection_status (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	available  INTEGER NOT NULL,
	last_check INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS send_failures (
	item_id         TEXT PRIMARY KEY,
	kind            TEXT NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT NOT NULL DEFAULT '',
	last_attempt_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_send_failures_kind ON send_failures(kind);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	project    TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS cycle_lease (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	holder     TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
