package recheck_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/recheck"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/store"
)

// newHarness wires a store, a three-handler registry (group, user, add)
// mirroring spec S5's out-of-order add scenario, a dispatcher, and a
// Drainer.
func newHarness(t *testing.T) (store.Store, *dispatch.Dispatcher, *recheck.Drainer) {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	r := registry.New()
	r.Register("group", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			id, _ := env.Data["id"].(string)
			return s.Set(ctx, tx, "group:"+id, true)
		},
	})
	r.Register("user", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			id, _ := env.Data["id"].(string)
			return s.Set(ctx, tx, "user:"+id, true)
		},
	})
	r.Register("add", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			group, _ := env.Data["group"].(string)
			user, _ := env.Data["user"].(string)

			groupOK, err := s.Contains(ctx, tx, "group:"+group)
			if err != nil {
				return err
			}
			userOK, err := s.Contains(ctx, tx, "user:"+user)
			if err != nil {
				return err
			}
			if !groupOK || !userOK {
				return store.NewRecheckQueue(s).Insert(ctx, tx, env.DataID(), "missing_dependency", 0)
			}

			return s.UpdateNested(ctx, tx, "adds", func(current json.RawMessage) (any, error) {
				m := map[string]bool{}
				if len(current) > 0 {
					if err := json.Unmarshal(current, &m); err != nil {
						return nil, err
					}
				}
				m[env.DataID()] = true
				return m, nil
			})
		},
	})

	require.NoError(t, r.Discover("testdata/handlers"))

	p := crypto.New(config.CryptoModeDummy)
	log := obslog.New(true)
	d := dispatch.New(s, r, p, log)
	dr := recheck.New(s, d, log)
	return s, d, dr
}

func TestDrainReplaysDeferredEventOnceDependenciesExist(t *testing.T) {
	ctx := context.Background()
	s, d, dr := newHarness(t)

	addEnv := envelope.Envelope{Data: map[string]any{"type": "add", "id": "add-1", "group": "G", "user": "U"}}
	require.NoError(t, d.Dispatch(ctx, nil, addEnv, 1000, true))

	raw, ok, err := s.Get(ctx, nil, "adds")
	require.NoError(t, err)
	require.True(t, !ok || string(raw) == "{}" || string(raw) == "null", "add must not be applied before its dependencies exist")

	marker, err := store.NewRecheckQueue(s).SelectBatch(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, marker, 1)
	require.Equal(t, "add-1", marker[0].EventID)

	groupEnv := envelope.Envelope{Data: map[string]any{"type": "group", "id": "G"}}
	require.NoError(t, d.Dispatch(ctx, nil, groupEnv, 1000, true))
	userEnv := envelope.Envelope{Data: map[string]any{"type": "user", "id": "U"}}
	require.NoError(t, d.Dispatch(ctx, nil, userEnv, 1000, true))

	result, err := dr.Drain(ctx, 2000, 1000, 30_000)
	require.NoError(t, err)
	require.True(t, result.LeaseHeld)
	require.Equal(t, 1, result.MarkersDrained)
	require.Equal(t, 3, result.EventsReplayed)

	raw, ok, err = s.Get(ctx, nil, "adds")
	require.NoError(t, err)
	require.True(t, ok)
	var adds map[string]bool
	require.NoError(t, json.Unmarshal(raw, &adds))
	require.True(t, adds["add-1"])

	remaining, err := store.NewRecheckQueue(s).SelectBatch(ctx, nil, 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestDrainIsIdempotentOnReplay(t *testing.T) {
	ctx := context.Background()
	s, d, dr := newHarness(t)

	groupEnv := envelope.Envelope{Data: map[string]any{"type": "group", "id": "G"}}
	require.NoError(t, d.Dispatch(ctx, nil, groupEnv, 1000, true))
	userEnv := envelope.Envelope{Data: map[string]any{"type": "user", "id": "U"}}
	require.NoError(t, d.Dispatch(ctx, nil, userEnv, 1000, true))
	addEnv := envelope.Envelope{Data: map[string]any{"type": "add", "id": "add-1", "group": "G", "user": "U"}}
	require.NoError(t, d.Dispatch(ctx, nil, addEnv, 1000, true))

	before, err := store.NewEventLog(s).List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, before, 3)

	result, err := dr.Drain(ctx, 2000, 1000, 30_000)
	require.NoError(t, err)
	require.Equal(t, 0, result.MarkersDrained)
	require.Equal(t, 0, result.EventsReplayed, "no markers means the replay loop never runs")

	raw, ok, err := s.Get(ctx, nil, "adds")
	require.NoError(t, err)
	require.True(t, ok)
	var adds map[string]bool
	require.NoError(t, json.Unmarshal(raw, &adds))
	require.Len(t, adds, 1)
}

func TestDrainSkipsWhenLeaseIsHeldByAnotherHolder(t *testing.T) {
	ctx := context.Background()
	s, _, dr := newHarness(t)

	leaseRow := "signed_groups.blocked.process_unblocked"
	require.NoError(t, s.Exec(ctx, nil,
		"INSERT INTO leases (name, holder, expires_at_ms) VALUES (?, ?, ?)", leaseRow, "other-process", int64(999_999)))

	result, err := dr.Drain(ctx, 1000, 1000, 30_000)
	require.NoError(t, err)
	require.False(t, result.LeaseHeld)
}
