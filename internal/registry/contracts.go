package registry

import (
	"context"

	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/store"
)

// Projector applies one envelope's effects to the store (§4.10). It MUST
// be deterministic given (store snapshot, envelope, nowMs) and
// idempotent for the same envelope; it MUST NOT perform I/O beyond the
// store, and MUST NOT return an error for expected missing-dependency
// cases (those go through the block/recheck mechanism in
// internal/recheck instead).
type Projector func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error

// CommandResult is the Go expression of §4.5 step 4's result mapping.
// Design Notes §9 replaces the loosely-typed `result.db` map with an
// explicit DirectUpdates slice of a closed set of update shapes, instead
// of allowing an arbitrary path into the store.
type CommandResult struct {
	APIResponse   any
	NewEnvelopes  []envelope.Envelope
	DirectUpdates []InfraUpdate
}

// InfraUpdate is a single direct store write a command result may
// request; the Command Executor validates each against the §4.5 step 5
// allow-list (incoming, eventStore, or a diff confined to
// state.outgoing) and is the only thing that actually performs the write
// — CommandFunc itself never holds a writable store.
type InfraUpdate struct {
	// Target is one of "incoming", "eventStore", or "state.outgoing".
	// For "incoming" and "eventStore", Value must be the matching payload
	// type below, or the executor rejects the update with a
	// DomainStateViolation; a "state.outgoing" Value of any type is
	// appended to state's outgoing list as is.
	Target string
	Value  any
}

// IncomingWrite is the InfraUpdate.Value shape for Target: "incoming" —
// a blob a command wants staged for the Incoming Decryptor as if it had
// arrived over the wire.
type IncomingWrite struct {
	Data   string
	Origin string
}

// EventStoreWrite is the InfraUpdate.Value shape for Target: "eventStore"
// — an event appended straight to the log without going through the
// Projection Dispatcher. Most commands should emit a NewEnvelope instead;
// this exists for the rare command that must record a fact without
// projecting it.
type EventStoreWrite struct {
	EventID   string
	EventType string
	Data      any
	Metadata  any
}

// CommandFunc executes a named command (§4.5 step 4, the `execute(input,
// store)` form — the legacy `execute(input, identity, store)` three-arg
// form has no standing in a statically-typed registry and is not
// reproduced). It receives a read-only StoreReader, never a writable
// Store: Design Notes §9 makes CommandResult.DirectUpdates the sole write
// path out of a command, so there is no store handle here for a command
// to bypass the step 5 allow-list with.
type CommandFunc func(ctx context.Context, input map[string]any, s store.StoreReader, tx store.Tx) (CommandResult, error)

// Command pairs a CommandFunc with whether it manages its own
// transaction boundary (§4.5 step 3: "if the module declares 'manages
// own transactions'"). Most commands leave this false and let the
// Command Executor open the transaction.
type Command struct {
	Func                   CommandFunc
	ManagesOwnTransactions bool
}
