// Package store is the Persistent Store (§4.1): a transactional key/value
// + ordered-list + SQL store exposing dict-like top-level keys backed by
// rows in a relational engine, with explicit transactions, optimistic
// retry, and protocol-supplied schema (§3.4). It is grounded directly on
// go-crablet's pkg/dcb/store_implementation.go and constructors.go: a
// pgxpool-backed struct built through a validating constructor, every
// operation wrapping pgx errors into the project's own error type
// (runtimeerr here, EventStoreError there). Two backends satisfy the same
// Store contract — Postgres via pgx (durable) and sqlite3 via
// mattn/go-sqlite3 (§3.9 ephemeral `DB_PATH=":memory:"`) — the way
// go-crablet itself is a single backend behind one interface; Open
// (factory.go) picks the backend the way go-crablet's NewEventStore picks
// defaults for an EventStoreConfig.
package store

import (
	"context"
	"encoding/json"
)

// Tx is an open transaction handle. Every Store method accepts an
// optional Tx; passing nil runs the operation in its own implicit
// transaction (Design Notes §9: explicit TxHandle rather than an
// auto_transaction bool flag — nil stands in for "no caller-held handle").
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is the minimal cursor shape both backends can satisfy.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// StoredEvent is one row of the append-only event store (§3.6, §4.9).
type StoredEvent struct {
	EventID     string
	EventType   string
	Data        json.RawMessage
	Metadata    json.RawMessage
	CreatedAtMs int64
	Position    int64
}

// IncomingBlob is one row of the incoming queue (§6.4): a raw transport
// blob awaiting the Incoming Decryptor.
type IncomingBlob struct {
	ID           int64
	Data         string
	Origin       string
	ReceivedAtMs int64
}

// Store is the generic transactional K/V + SQL contract every component
// above it (event store, lease helper, recheck queue, key map) is built
// from.
type Store interface {
	// Begin opens a new transaction. Nested opens are forbidden by
	// convention (§3.7): callers that already hold a Tx must pass it
	// through rather than calling Begin again.
	Begin(ctx context.Context) (Tx, error)

	// WithRetry runs fn under an escalating backoff when a transient
	// Conflict is observed, a deterministic number of attempts (§4.1,
	// §5; exact curve is implementation-defined per §9 Open Question 3).
	WithRetry(ctx context.Context, fn func(ctx context.Context) error) error

	// Get/Set/Delete/Contains/IterKeys are the key/value view (§3.4) over
	// top-level named values.
	Get(ctx context.Context, tx Tx, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, tx Tx, key string, value any) error
	Delete(ctx context.Context, tx Tx, key string) error
	Contains(ctx context.Context, tx Tx, key string) (bool, error)
	IterKeys(ctx context.Context, tx Tx) ([]string, error)

	// UpdateNested applies fn to key's current raw value (nil if absent)
	// and persists whatever fn returns, inside tx if given.
	UpdateNested(ctx context.Context, tx Tx, key string, fn func(current json.RawMessage) (any, error)) error

	// Exec/Query are the direct SQL access handlers use for table-scoped
	// operations (§4.1) — also the substrate the lease helper, recheck
	// queue, and event log are built on.
	Exec(ctx context.Context, tx Tx, sqlText string, args ...any) error
	Query(ctx context.Context, tx Tx, sqlText string, args ...any) (Rows, error)

	// ApplyProtocolSchema runs a protocol-supplied schema once at store
	// creation (§3.4); repeated index-create statements must be
	// idempotent, matching Postgres "IF NOT EXISTS" semantics.
	ApplyProtocolSchema(ctx context.Context, schemaSQL string) error

	// Dialect reports which SQL dialect Exec/Query accept, so callers
	// supplying protocol schema or hand-written queries know which
	// placeholder/type syntax to use.
	Dialect() Dialect

	Close(ctx context.Context) error
}

// StoreReader is the read-only slice of Store the Command Executor hands
// to a command implementation (§4.5 step 4). A command may inspect
// current state to decide what to emit, but has no Set/Delete/UpdateNested/
// Exec through this view — every persisted change must travel back as a
// CommandResult, so the step 5 allow-list is the only path into the store,
// never a direct write a command makes itself.
type StoreReader interface {
	Get(ctx context.Context, tx Tx, key string) (json.RawMessage, bool, error)
	Contains(ctx context.Context, tx Tx, key string) (bool, error)
	IterKeys(ctx context.Context, tx Tx) ([]string, error)
	Query(ctx context.Context, tx Tx, sqlText string, args ...any) (Rows, error)
	Dialect() Dialect
}

// Dialect distinguishes the two backends' SQL surfaces.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)
