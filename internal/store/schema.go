package store

import (
	_ "embed"
)

// runtimeSchemaSQL is the Postgres-dialect runtime schema (kv_store,
// event_store, incoming_queue, recheck_queue, leases), embedded from
// schema_postgres.sql, whose content matches the
// docker-entrypoint-initdb.d/schema.sql a real deployment mounts ahead of
// protocol schema (§3.9).
//
//go:embed schema_postgres.sql
var runtimeSchemaSQL string

// sqliteRuntimeSchemaSQL is the same shape translated to sqlite's type
// affinities (JSONB/BIGSERIAL have no sqlite equivalent; TEXT and
// INTEGER PRIMARY KEY AUTOINCREMENT stand in).
const sqliteRuntimeSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv_store (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_store (
    position      INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id      TEXT NOT NULL UNIQUE,
    event_type    TEXT NOT NULL,
    data          TEXT NOT NULL,
    metadata      TEXT NOT NULL,
    created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_store_type ON event_store (event_type);

CREATE TABLE IF NOT EXISTS incoming_queue (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    data            TEXT NOT NULL,
    origin          TEXT,
    received_at_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS recheck_queue (
    event_id        TEXT PRIMARY KEY,
    reason_type     TEXT,
    available_at_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_recheck_queue_available_at ON recheck_queue (available_at_ms);

CREATE TABLE IF NOT EXISTS leases (
    name          TEXT PRIMARY KEY,
    holder        TEXT NOT NULL,
    expires_at_ms INTEGER NOT NULL
);
`
