// Package decrypt implements the Incoming Decryptor (§4.7): draining the
// incoming store and attempting two-layer greedy decryption before
// handing each resulting envelope to the Projection Dispatcher. Grounded
// on original_source/protocols/framework_tests/handlers/incoming/process_incoming.py's
// greedy_decrypt_blob, reworked from a function returning None/partial
// dict/full dict into an explicit outcome type (Design Notes §9's
// "loosely-typed result becomes a sum-type-style struct").
package decrypt

import (
	"context"
	"encoding/json"

	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/runtimeerr"
	"github.com/quietcore/runtime/internal/store"
)

// Decryptor drains the incoming queue and forwards decrypted envelopes
// to the dispatcher (§4.7, the system job behind §6.4's boundary
// contract).
type Decryptor struct {
	store      store.Store
	keymap     *store.KeyMap
	crypto     crypto.Primitives
	mode       config.CryptoMode
	dispatcher *dispatch.Dispatcher
	log        *obslog.Logger
}

func New(s store.Store, p crypto.Primitives, mode config.CryptoMode, d *dispatch.Dispatcher, log *obslog.Logger) *Decryptor {
	return &Decryptor{store: s, keymap: store.NewKeyMap(s), crypto: p, mode: mode, dispatcher: d, log: log}
}

// DrainResult reports how many blobs were processed, forwarded, and
// dropped in one Drain call.
type DrainResult struct {
	Processed int
	Forwarded int
	Dropped   int
}

// Drain pulls up to limit blobs off the incoming queue, attempts to
// decrypt each, and forwards the resulting envelope (full or partial) to
// the dispatcher. A drop at the outer/inner decrypt or JSON-parse step
// is silent at info level (§4.7 "malformed traffic on a public transport
// is expected").
func (d *Decryptor) Drain(ctx context.Context, nowMs int64, limit int) (DrainResult, error) {
	queue := store.NewIncomingQueue(d.store)
	blobs, err := queue.Drain(ctx, nil, limit)
	if err != nil {
		return DrainResult{}, err
	}

	var result DrainResult
	for _, blob := range blobs {
		result.Processed++
		env, forward := d.decryptBlob(ctx, blob)
		if !forward {
			result.Dropped++
			continue
		}
		if err := d.dispatcher.Dispatch(ctx, nil, env, nowMs, true); err != nil {
			d.log.TaxonomyEntry("decrypt.Drain", runtimeerr.ProjectorError, err)
		}
		result.Forwarded++
	}
	return result, nil
}

// decryptBlob runs the §4.7 algorithm for one blob.
func (d *Decryptor) decryptBlob(ctx context.Context, blob store.IncomingBlob) (envelope.Envelope, bool) {
	// Step 1: already-decrypted local events are forwarded unchanged.
	if env, ok := parsePreDecrypted(blob); ok {
		return env, true
	}

	base := envelope.Envelope{
		Metadata: envelope.Metadata{
			Origin:        blob.Origin,
			ReceivedAt:    blob.ReceivedAtMs,
			SelfGenerated: false,
		},
	}

	realMode := d.mode == config.CryptoModeReal
	outer, ok := parseOuterLayer(blob.Data, realMode)
	if !ok {
		d.log.Info("decrypt: malformed outer layer, dropping blob", nil)
		return envelope.Envelope{}, false
	}

	outerKey, found, err := d.keymap.Lookup(ctx, nil, outer.keyHash)
	if err != nil || !found {
		base.Metadata.Error = "missing outer key: " + outer.keyHash
		base.Metadata.InNetwork = false
		base.Metadata.MissingHash = outer.keyHash
		return base, true
	}

	outerCipher, ok := decodeHex(outer.cipherHex)
	if !ok {
		return envelope.Envelope{}, false
	}

	var decryptedOuter []byte
	if realMode {
		nonce, ok := decodeHex(outer.nonceHex)
		if !ok {
			return envelope.Envelope{}, false
		}
		decryptedOuter, ok = d.crypto.Decrypt(outerCipher, nonce, []byte(outerKey))
		if !ok {
			d.log.Info("decrypt: outer decryption failed, dropping blob", nil)
			return envelope.Envelope{}, false
		}
	} else {
		decryptedOuter = outerCipher
	}

	var partial map[string]any
	if err := json.Unmarshal(decryptedOuter, &partial); err != nil {
		d.log.Info("decrypt: malformed outer JSON, dropping blob", nil)
		return envelope.Envelope{}, false
	}
	base.Metadata.OuterKeyHash = outer.keyHash

	innerHash, _ := partial["innerHash"].(string)
	if innerHash == "" {
		innerHash = outer.keyHash
	}

	innerKey, found, err := d.keymap.Lookup(ctx, nil, innerHash)
	if err != nil || !found {
		base.Metadata.Error = "missing inner key: " + innerHash
		base.Metadata.InNetwork = true
		base.Metadata.MissingHash = innerHash
		base.Data = partial
		return base, true
	}

	innerDataHex, _ := partial["data"].(string)
	if innerDataHex == "" {
		return envelope.Envelope{}, false
	}

	var decryptedInner []byte
	if realMode {
		if len(innerDataHex) < nonceHexLen {
			return envelope.Envelope{}, false
		}
		nonce, ok := decodeHex(innerDataHex[:nonceHexLen])
		if !ok {
			return envelope.Envelope{}, false
		}
		cipher, ok := decodeHex(innerDataHex[nonceHexLen:])
		if !ok {
			return envelope.Envelope{}, false
		}
		decryptedInner, ok = d.crypto.Decrypt(cipher, nonce, []byte(innerKey))
		if !ok {
			d.log.Info("decrypt: inner decryption failed, dropping blob", nil)
			return envelope.Envelope{}, false
		}
	} else {
		decoded, ok := decodeHex(innerDataHex)
		if !ok {
			return envelope.Envelope{}, false
		}
		decryptedInner = decoded
	}
	base.Metadata.InnerKeyHash = innerHash

	var data map[string]any
	if err := json.Unmarshal(decryptedInner, &data); err != nil {
		d.log.Info("decrypt: malformed inner JSON, dropping blob", nil)
		return envelope.Envelope{}, false
	}
	base.Data = data

	eventID, err := envelope.EventID(envelope.Envelope{Data: data}, d.crypto)
	if err == nil {
		base.Metadata.EventID = eventID
	}
	return base, true
}

// parsePreDecrypted recognizes a blob that already carries the
// {envelope,data,metadata} shape (§4.7 step 1).
func parsePreDecrypted(blob store.IncomingBlob) (envelope.Envelope, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob.Data), &raw); err != nil {
		return envelope.Envelope{}, false
	}
	if _, hasEnvelope := raw["envelope"]; !hasEnvelope {
		return envelope.Envelope{}, false
	}
	dataRaw, hasData := raw["data"]
	metaRaw, hasMeta := raw["metadata"]
	if !hasData || !hasMeta {
		return envelope.Envelope{}, false
	}
	var env envelope.Envelope
	if err := json.Unmarshal(dataRaw, &env.Data); err != nil {
		return envelope.Envelope{}, false
	}
	if err := json.Unmarshal(metaRaw, &env.Metadata); err != nil {
		return envelope.Envelope{}, false
	}
	return env, true
}
