package sqlite

import (
	"context"

	"github.com/pkg/errors"
)

// Embeddings are stored as JSON-encoded float32 arrays in TEXT columns;
// similarity is computed in the application layer (see fact.go).
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	api_key_hash TEXT UNIQUE,
	created_ts INTEGER NOT NULL,
	last_active_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id);

CREATE TABLE IF NOT EXISTS chat_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_logs_session_ts ON chat_logs (session_id, created_ts);

CREATE TABLE IF NOT EXISTS memory_facts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence REAL NOT NULL,
	slot_hint TEXT,
	temporal_state TEXT NOT NULL DEFAULT 'current',
	is_essential INTEGER NOT NULL DEFAULT 0,
	source_message_id TEXT,
	superseded_by TEXT,
	expires_ts INTEGER,
	last_refreshed_ts INTEGER NOT NULL,
	created_ts INTEGER NOT NULL,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_memory_facts_user_id ON memory_facts (user_id);
CREATE INDEX IF NOT EXISTS idx_memory_facts_category ON memory_facts (category);
CREATE INDEX IF NOT EXISTS idx_memory_facts_slot_hint ON memory_facts (slot_hint);
CREATE INDEX IF NOT EXISTS idx_memory_facts_superseded_by ON memory_facts (superseded_by);
CREATE INDEX IF NOT EXISTS idx_memory_facts_temporal_state ON memory_facts (temporal_state);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	scheduled_ts INTEGER NOT NULL,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (status, scheduled_ts, created_ts);
`

// Migrate applies the latest schema to the database.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
