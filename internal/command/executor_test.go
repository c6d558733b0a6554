package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietcore/runtime/internal/command"
	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/store"
)

func newHarness(t *testing.T) (store.Store, *command.Executor) {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	r := registry.New()
	r.Register("message", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			return nil
		},
		Commands: map[string]registry.Command{
			"create": {Func: func(ctx context.Context, input map[string]any, s store.StoreReader, tx store.Tx) (registry.CommandResult, error) {
				text, _ := input["text"].(string)
				return registry.CommandResult{
					APIResponse:  "Created",
					NewEnvelopes: []envelope.Envelope{{Data: map[string]any{"type": "message", "text": text}}},
				}, nil
			}},
			"bad": {Func: func(ctx context.Context, input map[string]any, s store.StoreReader, tx store.Tx) (registry.CommandResult, error) {
				return registry.CommandResult{
					DirectUpdates: []registry.InfraUpdate{{Target: "state.settings", Value: "nope"}},
				}, nil
			}},
			"notify": {Func: func(ctx context.Context, input map[string]any, s store.StoreReader, tx store.Tx) (registry.CommandResult, error) {
				text, _ := input["text"].(string)
				return registry.CommandResult{
					DirectUpdates: []registry.InfraUpdate{{Target: "state.outgoing", Value: text}},
				}, nil
			}},
		},
	})
	require.NoError(t, r.Discover("testdata/handlers"))

	p := crypto.New(config.CryptoModeDummy)
	d := dispatch.New(s, r, p, obslog.New(true))
	return s, command.New(s, r, d)
}

func TestRunEmitsAndProjectsEvent(t *testing.T) {
	ctx := context.Background()
	s, exec := newHarness(t)

	result, err := exec.Run(ctx, "message", "create", map[string]any{"text": "hi"}, 1000)
	require.NoError(t, err)
	require.Equal(t, "Created", result.APIResponse)

	log := store.NewEventLog(s)
	events, err := log.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRunAppliesDirectUpdateWithinAllowList(t *testing.T) {
	ctx := context.Background()
	s, exec := newHarness(t)

	_, err := exec.Run(ctx, "message", "notify", map[string]any{"text": "hello"}, 1000)
	require.NoError(t, err)

	raw, ok, err := s.Get(ctx, nil, "state")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"outgoing":["hello"]}`, string(raw))
}

func TestRunRejectsDirectUpdateOutsideAllowList(t *testing.T) {
	ctx := context.Background()
	_, exec := newHarness(t)

	_, err := exec.Run(ctx, "message", "bad", map[string]any{}, 1000)
	require.Error(t, err)
}

func TestRunFailsForUnknownCommand(t *testing.T) {
	ctx := context.Background()
	_, exec := newHarness(t)

	_, err := exec.Run(ctx, "message", "nope", map[string]any{}, 1000)
	require.Error(t, err)
}
