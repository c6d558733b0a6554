package store

import (
	"context"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// RecheckMarker is one row of the recheck_queue (§3.5): a note that
// event_id's projection was deferred for reason_type and may now be
// satisfiable.
type RecheckMarker struct {
	EventID       string
	ReasonType    string
	AvailableAtMs int64
}

// RecheckQueue is the §3.5/§4.8 dependency-blocking marker table. A
// projector that hits a missing dependency inserts a marker here instead
// of mutating domain state; the blocked.process_unblocked job drains it.
type RecheckQueue struct {
	s Store
}

func NewRecheckQueue(s Store) *RecheckQueue { return &RecheckQueue{s: s} }

// Insert marks eventID for re-projection. A second marker for the same
// event is a no-op (ON CONFLICT DO NOTHING): the event only needs to be
// replayed once per drain regardless of how many projectors deferred it.
func (q *RecheckQueue) Insert(ctx context.Context, tx Tx, eventID, reasonType string, availableAtMs int64) error {
	var insert string
	switch q.s.Dialect() {
	case DialectPostgres:
		insert = `INSERT INTO recheck_queue (event_id, reason_type, available_at_ms) VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING`
	default:
		insert = `INSERT OR IGNORE INTO recheck_queue (event_id, reason_type, available_at_ms) VALUES (?, ?, ?)`
	}
	return q.s.Exec(ctx, tx, insert, eventID, reasonType, availableAtMs)
}

// SelectBatch returns up to limit markers ordered by available_at_ms
// (§4.8 step 2), the drainer's view of what's ready to replay.
func (q *RecheckQueue) SelectBatch(ctx context.Context, tx Tx, limit int) ([]RecheckMarker, error) {
	var query string
	switch q.s.Dialect() {
	case DialectPostgres:
		query = `SELECT event_id, reason_type, available_at_ms FROM recheck_queue ORDER BY available_at_ms ASC LIMIT $1`
	default:
		query = `SELECT event_id, reason_type, available_at_ms FROM recheck_queue ORDER BY available_at_ms ASC LIMIT ?`
	}
	rows, err := q.s.Query(ctx, tx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecheckMarker
	for rows.Next() {
		var m RecheckMarker
		if err := rows.Scan(&m.EventID, &m.ReasonType, &m.AvailableAtMs); err != nil {
			return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "recheck.SelectBatch", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "recheck.SelectBatch", err)
	}
	return out, nil
}

// Delete removes markers by event ID (§4.8 step 3), run before the
// replay so a projector that re-defers the same event leaves a fresh
// marker rather than having its insert silently ignored by a stale one.
func (q *RecheckQueue) Delete(ctx context.Context, tx Tx, eventIDs []string) error {
	var stmt string
	switch q.s.Dialect() {
	case DialectPostgres:
		stmt = `DELETE FROM recheck_queue WHERE event_id = $1`
	default:
		stmt = `DELETE FROM recheck_queue WHERE event_id = ?`
	}
	for _, id := range eventIDs {
		if err := q.s.Exec(ctx, tx, stmt, id); err != nil {
			return err
		}
	}
	return nil
}
