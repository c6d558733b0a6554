package store

import (
	"context"
	"encoding/json"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// EventLog is the append-only event store (§3.6, §4.9) layered on top of
// Store.Exec/Query, mirroring the way go-crablet's CommandExecutor does
// raw tx.Exec to its own commands table alongside EventStore.Append: the
// generic Store stays table-agnostic, EventLog owns the one table it
// cares about.
type EventLog struct {
	s Store
}

func NewEventLog(s Store) *EventLog { return &EventLog{s: s} }

// Append writes one event row inside tx. Callers are expected to hold tx
// across the whole command transaction (§4.5) so the event and its
// projected state land in the same commit.
func (l *EventLog) Append(ctx context.Context, tx Tx, eventID, eventType string, data, metadata any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "eventlog.Append", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "eventlog.Append", err)
	}
	var insert string
	switch l.s.Dialect() {
	case DialectPostgres:
		insert = `INSERT INTO event_store (event_id, event_type, data, metadata, created_at_ms) VALUES ($1, $2, $3, $4, $5)`
	default:
		insert = `INSERT INTO event_store (event_id, event_type, data, metadata, created_at_ms) VALUES (?, ?, ?, ?, ?)`
	}
	return l.s.Exec(ctx, tx, insert, eventID, eventType, string(dataJSON), string(metaJSON), nowMillis())
}

// List replays the event store in append order starting strictly after
// afterPosition (0 for the full history), the backbone of the Recheck
// Queue's full-replay recheck (§4.8).
func (l *EventLog) List(ctx context.Context, tx Tx, afterPosition int64) ([]StoredEvent, error) {
	var query string
	switch l.s.Dialect() {
	case DialectPostgres:
		query = `SELECT event_id, event_type, data, metadata, created_at_ms, position FROM event_store WHERE position > $1 ORDER BY position ASC`
	default:
		query = `SELECT event_id, event_type, data, metadata, created_at_ms, position FROM event_store WHERE position > ? ORDER BY position ASC`
	}
	rows, err := l.s.Query(ctx, tx, query, afterPosition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var data, meta string
		if err := rows.Scan(&e.EventID, &e.EventType, &data, &meta, &e.CreatedAtMs, &e.Position); err != nil {
			return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "eventlog.List", err)
		}
		e.Data = json.RawMessage(data)
		e.Metadata = json.RawMessage(meta)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "eventlog.List", err)
	}
	return out, nil
}

// Contains reports whether eventID has already been appended, the guard
// the Command Executor and Projection Dispatcher use to keep re-delivery
// idempotent (§4.4, §4.5).
func (l *EventLog) Contains(ctx context.Context, tx Tx, eventID string) (bool, error) {
	var query string
	switch l.s.Dialect() {
	case DialectPostgres:
		query = `SELECT 1 FROM event_store WHERE event_id = $1`
	default:
		query = `SELECT 1 FROM event_store WHERE event_id = ?`
	}
	rows, err := l.s.Query(ctx, tx, query, eventID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}
