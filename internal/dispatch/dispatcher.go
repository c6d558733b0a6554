// Package dispatch implements the Projection Dispatcher (§4.4): routing
// one envelope to exactly one projector and applying its effects
// transactionally. Grounded on go-crablet's own "resolve, validate,
// apply, append" shape in pkg/dcb/event_store.go (Append itself
// validates an append condition before writing); here the lookup is
// against the handler registry instead of a DCB query, and the append
// target is the runtime's own event_store table instead of go-crablet's.
package dispatch

import (
	"context"

	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/runtimeerr"
	"github.com/quietcore/runtime/internal/store"
)

// Dispatcher routes envelopes to projectors (§4.4).
type Dispatcher struct {
	store    store.Store
	registry *registry.Registry
	crypto   crypto.Primitives
	log      *obslog.Logger

	typeMap map[string]string // lazily built from registry.BuildTypeMap
}

func New(s store.Store, r *registry.Registry, p crypto.Primitives, log *obslog.Logger) *Dispatcher {
	return &Dispatcher{store: s, registry: r, crypto: p, log: log}
}

// Dispatch runs the §4.4 algorithm for one envelope. When autoTransaction
// is false, tx must be a transaction the caller already holds and will
// commit/rollback itself (§4.4 step 4, and §4.5 step 7's "join the
// current transaction", §4.8 step 4's replay-within-one-transaction).
func (d *Dispatcher) Dispatch(ctx context.Context, tx store.Tx, env envelope.Envelope, nowMs int64, autoTransaction bool) (err error) {
	ctx, end := obslog.StartSpan(ctx, "dispatch.Dispatch")
	defer end(&err)

	eventType := env.EventType()

	handlerName, routed, err := d.routeFor(eventType)
	if err != nil {
		return err
	}
	if !routed {
		d.log.TaxonomyEntry("dispatch.Dispatch", runtimeerr.HandlerNotFound,
			runtimeerr.Newf(runtimeerr.HandlerNotFound, "dispatch.Dispatch", "no handler for event type %q, dropping envelope", eventType))
		return nil
	}

	projector, ok := d.registry.Projector(handlerName)
	if !ok {
		d.log.TaxonomyEntry("dispatch.Dispatch", runtimeerr.HandlerNotFound,
			runtimeerr.Newf(runtimeerr.HandlerNotFound, "dispatch.Dispatch", "handler %q has no projector, dropping envelope", handlerName))
		return nil
	}

	ownTx := tx
	if autoTransaction {
		var err error
		ownTx, err = d.store.Begin(ctx)
		if err != nil {
			return err
		}
	}

	if err := d.apply(ctx, ownTx, projector, env, nowMs); err != nil {
		if autoTransaction {
			ownTx.Rollback(ctx)
		}
		return err
	}

	if autoTransaction {
		return ownTx.Commit(ctx)
	}
	return nil
}

func (d *Dispatcher) routeFor(eventType string) (string, bool, error) {
	if d.typeMap == nil {
		typeMap, err := d.registry.BuildTypeMap()
		if err != nil {
			return "", false, err
		}
		d.typeMap = typeMap
	}
	name, ok := d.typeMap[eventType]
	return name, ok, nil
}

func (d *Dispatcher) apply(ctx context.Context, tx store.Tx, projector registry.Projector, env envelope.Envelope, nowMs int64) error {
	if err := projector(ctx, d.store, tx, env, nowMs); err != nil {
		return runtimeerr.New(runtimeerr.ProjectorError, "dispatch.apply", err)
	}

	id, err := envelope.EventID(env, d.crypto)
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "dispatch.apply", err)
	}

	dataJSON, metaJSON, err := env.Marshal()
	if err != nil {
		return runtimeerr.New(runtimeerr.ValidationError, "dispatch.apply", err)
	}

	log := store.NewEventLog(d.store)
	seen, err := log.Contains(ctx, tx, id)
	if err != nil {
		return err
	}
	if seen {
		return nil // idempotent insert (§4.9 "INSERT OR IGNORE")
	}
	return log.Append(ctx, tx, id, env.EventType(), dataJSON, metaJSON)
}

// BatchResult reports how many envelopes of a HandleBatch call failed
// (§4.4 "per-envelope failure increments a failed counter but does not
// abort the batch").
type BatchResult struct {
	Total  int
	Failed int
}

// HandleBatch runs each envelope in its own transaction; a failing
// envelope is logged and counted, not propagated.
func (d *Dispatcher) HandleBatch(ctx context.Context, envs []envelope.Envelope, nowMs int64) BatchResult {
	result := BatchResult{Total: len(envs)}
	for _, env := range envs {
		if err := d.Dispatch(ctx, nil, env, nowMs, true); err != nil {
			result.Failed++
			d.log.TaxonomyEntry("dispatch.HandleBatch", runtimeerr.ProjectorError, err)
		}
	}
	return result
}
