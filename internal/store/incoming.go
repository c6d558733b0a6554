package store

import (
	"context"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// IncomingQueue is the raw-transport staging table (§6.4) the Incoming
// Decryptor drains: network code enqueues opaque blobs here without
// knowing anything about envelopes or keys, the same separation
// go-crablet keeps between ingestion and projection.
type IncomingQueue struct {
	s Store
}

func NewIncomingQueue(s Store) *IncomingQueue { return &IncomingQueue{s: s} }

func (q *IncomingQueue) Enqueue(ctx context.Context, tx Tx, data, origin string) error {
	var insert string
	switch q.s.Dialect() {
	case DialectPostgres:
		insert = `INSERT INTO incoming_queue (data, origin, received_at_ms) VALUES ($1, $2, $3)`
	default:
		insert = `INSERT INTO incoming_queue (data, origin, received_at_ms) VALUES (?, ?, ?)`
	}
	return q.s.Exec(ctx, tx, insert, data, origin, nowMillis())
}

// Drain pulls up to limit queued blobs in FIFO order and removes them
// from the table, the "at-most-once hand-off to the decryptor" behavior
// §6.4 requires.
func (q *IncomingQueue) Drain(ctx context.Context, tx Tx, limit int) ([]IncomingBlob, error) {
	var selectQuery string
	switch q.s.Dialect() {
	case DialectPostgres:
		selectQuery = `SELECT id, data, origin, received_at_ms FROM incoming_queue ORDER BY id ASC LIMIT $1`
	default:
		selectQuery = `SELECT id, data, origin, received_at_ms FROM incoming_queue ORDER BY id ASC LIMIT ?`
	}
	rows, err := q.s.Query(ctx, tx, selectQuery, limit)
	if err != nil {
		return nil, err
	}
	var blobs []IncomingBlob
	for rows.Next() {
		var b IncomingBlob
		if err := rows.Scan(&b.ID, &b.Data, &b.Origin, &b.ReceivedAtMs); err != nil {
			rows.Close()
			return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "incoming.Drain", err)
		}
		blobs = append(blobs, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "incoming.Drain", err)
	}

	for _, b := range blobs {
		var del string
		switch q.s.Dialect() {
		case DialectPostgres:
			del = `DELETE FROM incoming_queue WHERE id = $1`
		default:
			del = `DELETE FROM incoming_queue WHERE id = ?`
		}
		if err := q.s.Exec(ctx, tx, del, b.ID); err != nil {
			return nil, err
		}
	}
	return blobs, nil
}
