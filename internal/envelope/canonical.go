package envelope

import (
	"encoding/json"

	"github.com/quietcore/runtime/internal/crypto"
)

// Canonical produces the canonical JSON encoding of v (§4.11): keys sorted
// lexicographically, no insignificant whitespace, UTF-8. encoding/json
// already sorts map[string]any keys when marshaling and emits no
// whitespace by default, so this is a named entry point rather than a
// hand-rolled encoder — the guarantee is documented here so callers don't
// have to re-derive it from encoding/json's source.
func Canonical(v any) ([]byte, error) {
	return json.Marshal(v)
}

// EventID derives the stable identifier for an envelope (§3.2):
// metadata.eventId if present, else data.id, else the canonical BLAKE2b
// hash of data with keys sorted.
func EventID(e Envelope, p crypto.Primitives) (string, error) {
	if e.Metadata.EventID != "" {
		return e.Metadata.EventID, nil
	}
	if id := e.DataID(); id != "" {
		return id, nil
	}
	canon, err := Canonical(e.Data)
	if err != nil {
		return "", err
	}
	return p.Hash(canon)
}
