package store

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// sqliteStore is the ephemeral Store backend (§3.9 "DB_PATH unset or
// :memory:"): database/sql over mattn/go-sqlite3, single shared
// in-process connection so an in-memory database survives across
// handles rather than each connection getting its own empty database.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens path (":memory:" for ephemeral mode) and applies the
// runtime schema.
func NewSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.NewSQLite", err)
	}
	db.SetMaxOpenConns(1) // one connection: avoids re-opening a fresh :memory: database per checkout
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.NewSQLite", err)
	}
	s := &sqliteStore{db: db}
	if err := s.ApplyProtocolSchema(ctx, sqliteRuntimeSchemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return runtimeerr.New(runtimeerr.Conflict, "store.Tx.Commit", err)
	}
	return nil
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Tx.Rollback", err)
	}
	return nil
}

func (s *sqliteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Begin", err)
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqliteStore) WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return withRetry(ctx, 3, fn)
}

type sqlExecQuery interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *sqliteStore) handle(tx Tx) sqlExecQuery {
	if tx == nil {
		return s.db
	}
	return tx.(*sqlTx).tx
}

func (s *sqliteStore) Get(ctx context.Context, tx Tx, key string) (json.RawMessage, bool, error) {
	row := s.handle(tx).QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Get", err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *sqliteStore) Set(ctx context.Context, tx Tx, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "store.Set", err)
	}
	_, err = s.handle(tx).ExecContext(ctx, `
		INSERT INTO kv_store (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(encoded))
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Set", err)
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, tx Tx, key string) error {
	_, err := s.handle(tx).ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Delete", err)
	}
	return nil
}

func (s *sqliteStore) Contains(ctx context.Context, tx Tx, key string) (bool, error) {
	_, ok, err := s.Get(ctx, tx, key)
	return ok, err
}

func (s *sqliteStore) IterKeys(ctx context.Context, tx Tx) ([]string, error) {
	rows, err := s.handle(tx).QueryContext(ctx, `SELECT key FROM kv_store`)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.IterKeys", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.IterKeys", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) UpdateNested(ctx context.Context, tx Tx, key string, fn func(current json.RawMessage) (any, error)) error {
	current, _, err := s.Get(ctx, tx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.Set(ctx, tx, key, next)
}

func (s *sqliteStore) Exec(ctx context.Context, tx Tx, sqlText string, args ...any) error {
	_, err := s.handle(tx).ExecContext(ctx, sqlText, args...)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Exec", err)
	}
	return nil
}

func (s *sqliteStore) Query(ctx context.Context, tx Tx, sqlText string, args ...any) (Rows, error) {
	rows, err := s.handle(tx).QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Query", err)
	}
	return sqlRowsAdapter{rows}, nil
}

func (s *sqliteStore) ApplyProtocolSchema(ctx context.Context, schemaSQL string) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return runtimeerr.New(runtimeerr.SchemaError, "store.ApplyProtocolSchema", err)
	}
	return nil
}

func (s *sqliteStore) Dialect() Dialect { return DialectSQLite }

func (s *sqliteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type sqlRowsAdapter struct{ rows *sql.Rows }

func (r sqlRowsAdapter) Next() bool             { return r.rows.Next() }
func (r sqlRowsAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowsAdapter) Err() error             { return r.rows.Err() }
func (r sqlRowsAdapter) Close()                 { r.rows.Close() }
