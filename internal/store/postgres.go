package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// pgStore is the durable Store backend (§3.9 "DB_PATH set to a real DSN"),
// grounded on go-crablet's pgxpool-based EventStore: a validating
// constructor that pings the pool up front, every method translating
// pgx errors into runtimeerr rather than leaking *pgconn.PgError.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool against dsn and applies the runtime schema.
// It fails fast (pool.Ping) the same way go-crablet's constructors refuse
// to hand back a store that can't reach its database.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.NewPostgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.NewPostgres", err)
	}
	s := &pgStore{pool: pool}
	if err := s.ApplyProtocolSchema(ctx, runtimeSchemaSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return runtimeerr.New(runtimeerr.Conflict, "store.Tx.Commit", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Tx.Rollback", err)
	}
	return nil
}

func (s *pgStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Begin", err)
	}
	return &pgTx{tx: tx}, nil
}

func (s *pgStore) WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return withRetry(ctx, 3, fn)
}

func (s *pgStore) querier(tx Tx) interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconnTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
} {
	if tx == nil {
		return pgPoolAdapter{s.pool}
	}
	return pgTxAdapter{tx.(*pgTx).tx}
}

func (s *pgStore) Get(ctx context.Context, tx Tx, key string) (json.RawMessage, bool, error) {
	row := s.querier(tx).QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key)
	var raw json.RawMessage
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Get", err)
	}
	return raw, true, nil
}

func (s *pgStore) Set(ctx context.Context, tx Tx, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "store.Set", err)
	}
	_, err = s.querier(tx).Exec(ctx, `
		INSERT INTO kv_store (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, encoded)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Set", err)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, tx Tx, key string) error {
	_, err := s.querier(tx).Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Delete", err)
	}
	return nil
}

func (s *pgStore) Contains(ctx context.Context, tx Tx, key string) (bool, error) {
	_, ok, err := s.Get(ctx, tx, key)
	return ok, err
}

func (s *pgStore) IterKeys(ctx context.Context, tx Tx) ([]string, error) {
	rows, err := s.querier(tx).Query(ctx, `SELECT key FROM kv_store`)
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

func (s *pgStore) UpdateNested(ctx context.Context, tx Tx, key string, fn func(current json.RawMessage) (any, error)) error {
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

func (s *pgStore) Exec(ctx context.Context, tx Tx, sqlText string, args ...any) error {
	_, err := s.querier(tx).Exec(ctx, sqlText, args...)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "store.Exec", err)
	}
	return nil
}

func (s *pgStore) Query(ctx context.Context, tx Tx, sqlText string, args ...any) (Rows, error) {
	rows, err := s.querier(tx).Query(ctx, sqlText, args...)
	if err != nil {
		return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "store.Query", err)
	}
	return pgRowsAdapter{rows}, nil
}

func (s *pgStore) ApplyProtocolSchema(ctx context.Context, schemaSQL string) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return runtimeerr.New(runtimeerr.SchemaError, "store.ApplyProtocolSchema", err)
	}
	return nil
}

func (s *pgStore) Dialect() Dialect { return DialectPostgres }

func (s *pgStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// --- thin adapters reconciling pgx's pool/tx method sets into one shape ---

type pgconnTag = interface{}

type pgPoolAdapter struct{ pool *pgxpool.Pool }

func (a pgPoolAdapter) Exec(ctx context.Context, sqlText string, args ...any) (pgconnTag, error) {
	return a.pool.Exec(ctx, sqlText, args...)
}
func (a pgPoolAdapter) QueryRow(ctx context.Context, sqlText string, args ...any) pgx.Row {
	return a.pool.QueryRow(ctx, sqlText, args...)
}
func (a pgPoolAdapter) Query(ctx context.Context, sqlText string, args ...any) (pgx.Rows, error) {
	return a.pool.Query(ctx, sqlText, args...)
}

type pgTxAdapter struct{ tx pgx.Tx }

func (a pgTxAdapter) Exec(ctx context.Context, sqlText string, args ...any) (pgconnTag, error) {
	return a.tx.Exec(ctx, sqlText, args...)
}
func (a pgTxAdapter) QueryRow(ctx context.Context, sqlText string, args ...any) pgx.Row {
	return a.tx.QueryRow(ctx, sqlText, args...)
}
func (a pgTxAdapter) Query(ctx context.Context, sqlText string, args ...any) (pgx.Rows, error) {
	return a.tx.Query(ctx, sqlText, args...)
}

type pgRowsAdapter struct{ rows pgx.Rows }

func (r pgRowsAdapter) Next() bool             { return r.rows.Next() }
func (r pgRowsAdapter) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r pgRowsAdapter) Err() error             { return r.rows.Err() }
func (r pgRowsAdapter) Close()                 { r.rows.Close() }
