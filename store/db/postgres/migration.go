package postgres

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Schema statements are idempotent; Migrate runs on every startup.
// The embedding column dimension is fixed at first migration; changing
// EMBEDDING_DIM afterwards requires a manual migration.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	api_key_hash TEXT UNIQUE,
	created_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_active_ts TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (id),
	created_ts TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions (user_id);

CREATE TABLE IF NOT EXISTS chat_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions (id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_logs_session_ts ON chat_logs (session_id, created_ts);

CREATE TABLE IF NOT EXISTS memory_facts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (id),
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	slot_hint TEXT,
	temporal_state TEXT NOT NULL DEFAULT 'current',
	is_essential BOOLEAN NOT NULL DEFAULT FALSE,
	source_message_id TEXT REFERENCES chat_logs (id),
	superseded_by TEXT REFERENCES memory_facts (id),
	expires_ts TIMESTAMPTZ,
	last_refreshed_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	embedding vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_memory_facts_user_id ON memory_facts (user_id);
CREATE INDEX IF NOT EXISTS idx_memory_facts_category ON memory_facts (category);
CREATE INDEX IF NOT EXISTS idx_memory_facts_slot_hint ON memory_facts (slot_hint);
CREATE INDEX IF NOT EXISTS idx_memory_facts_superseded_by ON memory_facts (superseded_by);
CREATE INDEX IF NOT EXISTS idx_memory_facts_temporal_state ON memory_facts (temporal_state);
CREATE INDEX IF NOT EXISTS idx_memory_facts_embedding ON memory_facts
	USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	scheduled_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_ts TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (status, scheduled_ts, created_ts);
`

// Migrate applies the latest schema to the database.
func (d *DB) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(schemaTemplate, d.profile.EmbeddingDim)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
