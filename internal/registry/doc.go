// Package registry is the Handler Registry (§4.3) and the Handler
// Contract Surface (§4.10): it enumerates handler directories under a
// configured base path, parses each one's manifest.yaml (§3.8), and
// builds the event-type -> handler routing table the Projection
// Dispatcher (internal/dispatch) consults.
//
// Handlers here are Go code, not dynamically loaded modules: Design
// Notes §9 replaces "dynamic imports at dispatch time" with a
// compile-time registration API. A handler package calls Register once
// (typically from an init func) to supply its Projector and Command
// implementations; Discover then matches registered names against the
// manifests found on disk and fails the same way missing/duplicate
// handler declarations would in the original filesystem-loaded design.
package registry

const (
	// TypeUnknown and TypeMissingKey are the two reserved event types
	// §4.3/§4.4 route to a catch-all handler rather than a handler
	// matching data.type.
	TypeUnknown    = "unknown"
	TypeMissingKey = "missing_key"
)
