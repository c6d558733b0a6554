package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietcore/runtime/internal/store"
)

func openSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	ok, err := s.Contains(ctx, nil, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, nil, "settings", map[string]any{"a": 1}))

	raw, ok, err := s.Get(ctx, nil, "settings")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(raw))

	keys, err := s.IterKeys(ctx, nil)
	require.NoError(t, err)
	require.Contains(t, keys, "settings")

	require.NoError(t, s.Delete(ctx, nil, "settings"))
	ok, err = s.Contains(ctx, nil, "settings")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateNestedAppliesFnAgainstCurrentValue(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	err := s.UpdateNested(ctx, nil, "counter", func(current json.RawMessage) (any, error) {
		if current == nil {
			return map[string]any{"n": 1}, nil
		}
		return nil, nil
	})
	require.NoError(t, err)

	raw, ok, err := s.Get(ctx, nil, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"n":1}`, string(raw))
}

func TestTransactionIsolatesUncommittedWrites(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, tx, "pending", "value"))
	require.NoError(t, tx.Rollback(ctx))

	ok, err := s.Contains(ctx, nil, "pending")
	require.NoError(t, err)
	require.False(t, ok, "rolled back write must not be visible")
}

func TestEventLogAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	log := store.NewEventLog(s)

	require.NoError(t, log.Append(ctx, nil, "evt-1", "message", map[string]any{"text": "hi"}, map[string]any{}))
	require.NoError(t, log.Append(ctx, nil, "evt-2", "message", map[string]any{"text": "yo"}, map[string]any{}))

	events, err := log.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-1", events[0].EventID)
	require.Equal(t, "evt-2", events[1].EventID)

	events, err = log.List(ctx, nil, events[0].Position)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "evt-2", events[0].EventID)

	seen, err := log.Contains(ctx, nil, "evt-1")
	require.NoError(t, err)
	require.True(t, seen)

	seen, err = log.Contains(ctx, nil, "nope")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestIncomingQueueDrainIsFIFOAndConsuming(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	q := store.NewIncomingQueue(s)

	require.NoError(t, q.Enqueue(ctx, nil, "blob-1", "peer-a"))
	require.NoError(t, q.Enqueue(ctx, nil, "blob-2", "peer-b"))

	blobs, err := q.Drain(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	require.Equal(t, "blob-1", blobs[0].Data)
	require.Equal(t, "blob-2", blobs[1].Data)

	blobs, err = q.Drain(ctx, nil, 10)
	require.NoError(t, err)
	require.Empty(t, blobs, "drained blobs must not be re-delivered")
}

func TestKeyMapPutAndLookup(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	km := store.NewKeyMap(s)

	_, ok, err := km.Lookup(ctx, nil, "hash-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, km.Put(ctx, nil, "hash-1", "keymaterial"))
	material, ok, err := km.Lookup(ctx, nil, "hash-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "keymaterial", material)
}
