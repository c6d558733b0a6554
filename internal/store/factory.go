package store

import (
	"context"

	"github.com/quietcore/runtime/internal/config"
)

// Open resolves the backend from cfg the way go-crablet's NewEventStore
// resolves pool options from an EventStoreConfig: an ephemeral DBPath
// (§3.9, unset or ":memory:") gets the sqlite3 backend, anything else is
// treated as a Postgres DSN.
func Open(ctx context.Context, cfg config.RuntimeConfig) (Store, error) {
	if cfg.Ephemeral() {
		return NewSQLite(ctx, ":memory:")
	}
	return NewPostgres(ctx, cfg.DBPath)
}
