// Package command implements the Command Executor (§4.5): the single
// boundary where external intent enters the system and is forced to
// express itself as events, preserving the event-sourcing invariant that
// state is a pure fold over the event store. Grounded on go-crablet's
// CommandExecutor (pkg/dcb/command_executor.go): a transaction wrapper
// around a handler invocation, validating the handler's returned
// intent before committing.
package command

import (
	"context"
	"encoding/json"

	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/runtimeerr"
	"github.com/quietcore/runtime/internal/store"
)

// Executor runs named commands (§4.5).
type Executor struct {
	store      store.Store
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
}

func New(s store.Store, r *registry.Registry, d *dispatch.Dispatcher) *Executor {
	return &Executor{store: s, registry: r, dispatcher: d}
}

// Run executes handlerName/commandName with input (§4.5 contract
// `run_command(handler, command, input, store, time_now_ms)`). Steps
// 2-9 run under Store.WithRetry when the backend supports it.
func (e *Executor) Run(ctx context.Context, handlerName, commandName string, input map[string]any, nowMs int64) (result registry.CommandResult, err error) {
	ctx, end := obslog.StartSpan(ctx, "command.Run")
	defer end(&err)

	cmd, ok := e.registry.ResolveCommand(handlerName, commandName)
	if !ok {
		return registry.CommandResult{}, runtimeerr.Newf(runtimeerr.HandlerNotFound, "command.Run",
			"no command %q registered for handler %q", commandName, handlerName)
	}

	err = e.store.WithRetry(ctx, func(ctx context.Context) error {
		var tx store.Tx
		if !cmd.ManagesOwnTransactions {
			var err error
			tx, err = e.store.Begin(ctx)
			if err != nil {
				return err
			}
		}

		r, err := cmd.Func(ctx, input, e.store, tx)
		if err != nil {
			if tx != nil {
				tx.Rollback(ctx)
			}
			return err
		}

		if err := e.applyDirectUpdates(ctx, tx, r.DirectUpdates); err != nil {
			if tx != nil {
				tx.Rollback(ctx)
			}
			return err
		}

		for i := range r.NewEnvelopes {
			prepareEmittedEnvelope(&r.NewEnvelopes[i], nowMs)
			if err := e.dispatcher.Dispatch(ctx, tx, r.NewEnvelopes[i], nowMs, false); err != nil {
				if tx != nil {
					tx.Rollback(ctx)
				}
				return err
			}
		}

		result = r
		if tx != nil {
			return tx.Commit(ctx)
		}
		return nil
	})
	if err != nil {
		return registry.CommandResult{}, err
	}
	return result, nil
}

// applyDirectUpdates enforces §4.5 step 5's allow-list and performs the
// write: incoming, eventStore, or a diff confined to state.outgoing are
// the only targets a command may reach, and this is the only place any of
// them is actually written. CommandFunc never sees a writable Store
// (store.StoreReader has no Set/UpdateNested/Exec), so a command cannot
// land a domain-state write any other way.
func (e *Executor) applyDirectUpdates(ctx context.Context, tx store.Tx, updates []registry.InfraUpdate) error {
	for _, u := range updates {
		switch u.Target {
		case "incoming":
			w, ok := u.Value.(registry.IncomingWrite)
			if !ok {
				return runtimeerr.NewDomainViolation("command.applyDirectUpdates", u.Target)
			}
			if err := store.NewIncomingQueue(e.store).Enqueue(ctx, tx, w.Data, w.Origin); err != nil {
				return err
			}
		case "eventStore":
			w, ok := u.Value.(registry.EventStoreWrite)
			if !ok {
				return runtimeerr.NewDomainViolation("command.applyDirectUpdates", u.Target)
			}
			if err := store.NewEventLog(e.store).Append(ctx, tx, w.EventID, w.EventType, w.Data, w.Metadata); err != nil {
				return err
			}
		case "state.outgoing":
			if err := e.store.UpdateNested(ctx, tx, "state", func(current json.RawMessage) (any, error) {
				var state map[string]any
				if len(current) > 0 {
					if err := json.Unmarshal(current, &state); err != nil {
						return nil, runtimeerr.New(runtimeerr.ValidationError, "command.applyDirectUpdates", err)
					}
				}
				if state == nil {
					state = map[string]any{}
				}
				outgoing, _ := state["outgoing"].([]any)
				state["outgoing"] = append(outgoing, u.Value)
				return state, nil
			}); err != nil {
				return err
			}
		default:
			return runtimeerr.NewDomainViolation("command.applyDirectUpdates", u.Target)
		}
	}
	return nil
}

// prepareEmittedEnvelope fills in the self-generated metadata fields
// §4.5 step 6 requires for events a command produces.
func prepareEmittedEnvelope(env *envelope.Envelope, nowMs int64) {
	env.Metadata.SelfGenerated = true
	if env.Data != nil {
		if pubkey, ok := env.Data["pubkey"].(string); ok && pubkey != "" && env.Metadata.ReceivedBy == "" {
			env.Metadata.ReceivedBy = pubkey
		}
	}
	if env.Metadata.EventID == "" {
		env.Metadata.EventID = randomEventID()
	}
	env.Metadata.Timestamp = nowMs
}
