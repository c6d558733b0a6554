package store

import (
	"context"
	"encoding/json"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// KeyMap is the key_map top-level value (§3.3): a hash-of-key -> raw key
// material table the Incoming Decryptor consults for both wire layers.
// Kept as a thin view over the generic kv_store key "key_map" rather
// than its own table, since it is exactly the dict-like shape §3.4
// already describes for top-level values.
type KeyMap struct {
	s Store
}

func NewKeyMap(s Store) *KeyMap { return &KeyMap{s: s} }

const keyMapStoreKey = "key_map"

func (k *KeyMap) Lookup(ctx context.Context, tx Tx, keyHash string) (string, bool, error) {
	raw, ok, err := k.s.Get(ctx, tx, keyMapStoreKey)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false, runtimeerr.New(runtimeerr.StorageUnavailable, "keymap.Lookup", err)
	}
	material, found := m[keyHash]
	return material, found, nil
}

// Put registers a key under its hash, e.g. once a peer link or group
// grants a new symmetric key (§4.7 "missing key" recheck triggers).
func (k *KeyMap) Put(ctx context.Context, tx Tx, keyHash, material string) error {
	return k.s.UpdateNested(ctx, tx, keyMapStoreKey, func(current json.RawMessage) (any, error) {
		m := map[string]string{}
		if len(current) > 0 {
			if err := json.Unmarshal(current, &m); err != nil {
				return nil, runtimeerr.New(runtimeerr.StorageUnavailable, "keymap.Put", err)
			}
		}
		m[keyHash] = material
		return m, nil
	})
}
