package decrypt_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/decrypt"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/store"
)

// buildDummyWireBlob mirrors original_source's create_encrypted_blob in
// dummy mode: outerKeyHash(64 hex) || outerCiphertext, where the
// ciphertext is itself the JSON of {innerHash, data} and data is the
// hex of the plaintext event JSON.
func buildDummyWireBlob(t *testing.T, p crypto.Primitives, innerKey, outerKey string, event map[string]any) string {
	t.Helper()

	eventJSON, err := json.Marshal(event)
	require.NoError(t, err)

	innerHash, err := p.Hash([]byte(innerKey))
	require.NoError(t, err)

	partial := map[string]any{
		"innerHash": innerHash,
		"data":      hex.EncodeToString(eventJSON),
	}
	partialJSON, err := json.Marshal(partial)
	require.NoError(t, err)

	outerHash, err := p.Hash([]byte(outerKey))
	require.NoError(t, err)

	return outerHash + hex.EncodeToString(partialJSON)
}

func newHarness(t *testing.T) (store.Store, *store.KeyMap, crypto.Primitives, *decrypt.Decryptor) {
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
	})
	r.Register("missing_key", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			return nil
		},
	})
	require.NoError(t, r.Discover("testdata/handlers"))

	p := crypto.New(config.CryptoModeDummy)
	d := dispatch.New(s, r, p, obslog.New(true))
	dec := decrypt.New(s, p, config.CryptoModeDummy, d, obslog.New(true))
	return s, store.NewKeyMap(s), p, dec
}

func TestDrainForwardsDecryptedEnvelope(t *testing.T) {
	ctx := context.Background()
	s, km, p, dec := newHarness(t)

	outerKey, innerKey := "outer-secret", "inner-secret"
	outerHash, err := p.Hash([]byte(outerKey))
	require.NoError(t, err)
	innerHash, err := p.Hash([]byte(innerKey))
	require.NoError(t, err)
	require.NoError(t, km.Put(ctx, nil, outerHash, outerKey))
	require.NoError(t, km.Put(ctx, nil, innerHash, innerKey))

	wire := buildDummyWireBlob(t, p, innerKey, outerKey, map[string]any{"type": "message", "text": "hi"})

	queue := store.NewIncomingQueue(s)
	require.NoError(t, queue.Enqueue(ctx, nil, wire, "peer-a"))

	result, err := dec.Drain(ctx, 1000, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Forwarded)
	require.Equal(t, 0, result.Dropped)

	log := store.NewEventLog(s)
	events, err := log.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "message", events[0].EventType)
}

func TestDrainYieldsPartialEnvelopeForMissingOuterKey(t *testing.T) {
	ctx := context.Background()
	s, _, p, dec := newHarness(t)

	wire := buildDummyWireBlob(t, p, "inner-secret", "never-registered-outer", map[string]any{"type": "message"})

	queue := store.NewIncomingQueue(s)
	require.NoError(t, queue.Enqueue(ctx, nil, wire, "peer-a"))

	result, err := dec.Drain(ctx, 1000, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Forwarded, "a missing-key partial envelope is still forwarded to the dispatcher")

	log := store.NewEventLog(s)
	events, err := log.List(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, envelope.TypeMissingKey, events[0].EventType)
}

func TestDrainDropsMalformedBlob(t *testing.T) {
	ctx := context.Background()
	s, _, _, dec := newHarness(t)

	queue := store.NewIncomingQueue(s)
	require.NoError(t, queue.Enqueue(ctx, nil, "not-even-hex-and-too-short", "peer-a"))

	result, err := dec.Drain(ctx, 1000, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Dropped)
	require.Equal(t, 0, result.Forwarded)
}
