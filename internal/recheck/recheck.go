// Package recheck implements the Dependency/Recheck Subsystem (§4.8): a
// drainer that replays the full event history through the Projection
// Dispatcher so events a projector deferred for a missing dependency get
// a second chance once that dependency exists. Grounded on the same
// lease-guarded single-drainer shape internal/lease documents, applied
// here to the specific job name §4.8 assigns
// ("signed_groups.blocked.process_unblocked").
package recheck

import (
	"context"
	"encoding/json"
	"os"

	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/lease"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/store"
)

// leaseName is the fixed lease key §4.8 names for the recheck drainer.
const leaseName = "signed_groups.blocked.process_unblocked"

// Drainer runs the blocked.process_unblocked job.
type Drainer struct {
	store      store.Store
	queue      *store.RecheckQueue
	log        *store.EventLog
	leases     *lease.Manager
	dispatcher *dispatch.Dispatcher
	logger     *obslog.Logger
	holder     string
}

func New(s store.Store, d *dispatch.Dispatcher, logger *obslog.Logger) *Drainer {
	holder, err := os.Hostname()
	if err != nil || holder == "" {
		holder = "recheck-drainer"
	}
	return &Drainer{
		store:      s,
		queue:      store.NewRecheckQueue(s),
		log:        store.NewEventLog(s),
		leases:     lease.NewManager(s),
		dispatcher: d,
		logger:     logger,
		holder:     holder,
	}
}

// DrainResult reports what one blocked.process_unblocked invocation did.
type DrainResult struct {
	LeaseHeld      bool
	MarkersDrained int
	EventsReplayed int
}

// Drain runs the §4.8 algorithm once. batchSize bounds how many markers a
// single invocation clears (config.RuntimeConfig.RecheckBatchSize);
// ttlMs is the lease's TTL (config.RuntimeConfig.LeaseTTLMillis).
func (d *Drainer) Drain(ctx context.Context, nowMs int64, batchSize int, ttlMs int64) (DrainResult, error) {
	ctx, end := obslog.StartSpan(ctx, "recheck.Drain")
	var err error
	defer end(&err)

	held, ok, err := d.leases.Acquire(ctx, leaseName, d.holder, nowMs, ttlMs)
	if err != nil {
		return DrainResult{}, err
	}
	if !ok {
		return DrainResult{LeaseHeld: false}, nil
	}
	defer func() {
		_ = d.leases.Release(ctx, held.Name, held.Holder)
	}()

	result := DrainResult{LeaseHeld: true}
	err = d.store.WithRetry(ctx, func(ctx context.Context) error {
		tx, txErr := d.store.Begin(ctx)
		if txErr != nil {
			return txErr
		}

		markers, txErr := d.queue.SelectBatch(ctx, tx, batchSize)
		if txErr != nil {
			tx.Rollback(ctx)
			return txErr
		}
		if len(markers) == 0 {
			return tx.Commit(ctx)
		}

		ids := make([]string, len(markers))
		for i, m := range markers {
			ids[i] = m.EventID
		}
		if txErr = d.queue.Delete(ctx, tx, ids); txErr != nil {
			tx.Rollback(ctx)
			return txErr
		}

		events, txErr := d.log.List(ctx, tx, 0)
		if txErr != nil {
			tx.Rollback(ctx)
			return txErr
		}

		for _, ev := range events {
			env, decodeErr := envelopeFromStored(ev)
			if decodeErr != nil {
				tx.Rollback(ctx)
				return decodeErr
			}
			if dispatchErr := d.dispatcher.Dispatch(ctx, tx, env, nowMs, false); dispatchErr != nil {
				tx.Rollback(ctx)
				return dispatchErr
			}
		}

		result.MarkersDrained = len(markers)
		result.EventsReplayed = len(events)
		return tx.Commit(ctx)
	})
	if err != nil {
		return DrainResult{LeaseHeld: true}, err
	}
	return result, nil
}

// envelopeFromStored rebuilds the envelope the Projection Dispatcher
// expects from an event_store row (§4.9), the inverse of
// envelope.Envelope.Marshal.
func envelopeFromStored(ev store.StoredEvent) (envelope.Envelope, error) {
	var data map[string]any
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return envelope.Envelope{}, err
	}
	var meta envelope.Metadata
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.Envelope{Data: data, Metadata: meta}, nil
}
