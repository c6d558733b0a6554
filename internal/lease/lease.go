// Package lease implements the single-drainer mutual exclusion primitive
// (§4.12): a short-TTL row in the leases table stands in for a
// distributed lock. Acquire reads the current row inside a transaction
// and upserts it only when no unexpired lease exists for the name.
// Grounded on go-crablet's own optimistic-concurrency style (a
// conditional write inside one transaction) applied to a lock table
// instead of the event store.
package lease

import (
	"context"

	"github.com/quietcore/runtime/internal/store"
)

// Lease is the handle returned by Acquire; callers must Release it (or
// let it expire) once the protected section finishes.
type Lease struct {
	Name      string
	Holder    string
	ExpiresAt int64
}

// Manager acquires and releases leases against the leases table (§4.12),
// used to keep the Recheck Queue's drainer from running concurrently
// across multiple process instances.
type Manager struct {
	s store.Store
}

func NewManager(s store.Store) *Manager { return &Manager{s: s} }

// Acquire attempts to take name for holder until nowMs+ttlMs. It
// succeeds if no row exists for name, or the existing row's
// expires_at_ms has already passed (§4.12 "an expired lease is treated
// as absent"). Returns ok=false without error when another holder's
// lease is still live — this is the expected "someone else has it"
// outcome, not a failure.
func (m *Manager) Acquire(ctx context.Context, name, holder string, nowMs, ttlMs int64) (*Lease, bool, error) {
	expiresAt := nowMs + ttlMs

	var ok bool
	err := m.s.WithRetry(ctx, func(ctx context.Context) error {
		tx, err := m.s.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var query string
		switch m.s.Dialect() {
		case store.DialectPostgres:
			query = `SELECT expires_at_ms FROM leases WHERE name = $1`
		default:
			query = `SELECT expires_at_ms FROM leases WHERE name = ?`
		}
		rows, err := m.s.Query(ctx, tx, query, name)
		if err != nil {
			return err
		}
		var existingExpiry int64
		hasRow := rows.Next()
		if hasRow {
			if err := rows.Scan(&existingExpiry); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()

		if hasRow && existingExpiry > nowMs {
			ok = false
			return nil
		}

		var upsert string
		switch m.s.Dialect() {
		case store.DialectPostgres:
			upsert = `INSERT INTO leases (name, holder, expires_at_ms) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE SET holder = EXCLUDED.holder, expires_at_ms = EXCLUDED.expires_at_ms`
		default:
			upsert = `INSERT INTO leases (name, holder, expires_at_ms) VALUES (?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET holder = excluded.holder, expires_at_ms = excluded.expires_at_ms`
		}
		if err := m.s.Exec(ctx, tx, upsert, name, holder, expiresAt); err != nil {
			return err
		}
		ok = true
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{Name: name, Holder: holder, ExpiresAt: expiresAt}, true, nil
}

// Release drops the lease row unconditionally for holder; a stale
// Release from a holder that has already lost the lease to someone else
// is a no-op rather than an error (matches the expired-lease-is-absent
// semantics Acquire uses).
func (m *Manager) Release(ctx context.Context, name, holder string) error {
	var del string
	switch m.s.Dialect() {
	case store.DialectPostgres:
		del = `DELETE FROM leases WHERE name = $1 AND holder = $2`
	default:
		del = `DELETE FROM leases WHERE name = ? AND holder = ?`
	}
	return m.s.Exec(ctx, nil, del, name, holder)
}
