// Package envelope defines the shared envelope shape (§3.1) that flows
// from the Incoming Decryptor through the Projection Dispatcher into
// state, and the canonicalization rules (§4.11) used to derive stable
// event IDs and hashes. go-crablet's Event/Tag/InputEvent types
// (pkg/dcb/interfaces.go) are the closest teacher shape — a typed envelope
// around an opaque data payload plus bookkeeping fields — generalized here
// per Design Notes §9: "Mapping-like envelope metadata becomes a fixed
// struct with explicit optional fields; a small extensions map
// accommodates protocol-specific annotations."
package envelope

import "encoding/json"

// Reserved event types (§3.1, §4.4): sentinel strings the original
// dynamic runtime used directly become named constants here, per Design
// Notes §9 ("All sentinel strings... become enum variants").
const (
	TypeUnknown    = "unknown"
	TypeMissingKey = "missing_key"
)

// Metadata is the envelope's bookkeeping half (§3.1). Every field the spec
// names is explicit; Extensions carries anything a protocol handler wants
// to stash that the core runtime doesn't interpret.
type Metadata struct {
	EventID       string `json:"eventId,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	Origin        string `json:"origin,omitempty"`
	ReceivedAt    int64  `json:"receivedAt,omitempty"`
	SelfGenerated bool   `json:"selfGenerated,omitempty"`
	ReceivedBy    string `json:"received_by,omitempty"`
	Error         string `json:"error,omitempty"`
	MissingHash   string `json:"missingHash,omitempty"`
	InNetwork     bool   `json:"inNetwork,omitempty"`
	OuterKeyHash  string `json:"outerKeyHash,omitempty"`
	InnerKeyHash  string `json:"innerKeyHash,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Sender        string `json:"sender,omitempty"`

	// Extensions holds protocol-specific annotations the core runtime
	// never interprets (Design Notes §9).
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Envelope is the unit flowing through the runtime after decryption
// (§3.1). A partial envelope carrying Metadata.Error has nil Data when the
// outer key was missing, and the decrypted outer layer as Data when the
// inner key was missing.
type Envelope struct {
	Data     map[string]any
	Metadata Metadata
}

// IsPartial reports whether this envelope is a decrypt-failure placeholder
// (§3.1 invariant: data.type non-empty OR metadata.error present).
func (e Envelope) IsPartial() bool {
	return e.Metadata.Error != ""
}

// EventType resolves the routing key the Projection Dispatcher uses
// (§4.4 steps 1-2): missing_key if the envelope carries an error,
// otherwise data.type, defaulting to unknown.
func (e Envelope) EventType() string {
	if e.IsPartial() {
		return TypeMissingKey
	}
	if e.Data == nil {
		return TypeUnknown
	}
	t, _ := e.Data["type"].(string)
	if t == "" {
		return TypeUnknown
	}
	return t
}

// DataID returns data.id if present, for the event-ID fallback chain
// (§3.2).
func (e Envelope) DataID() string {
	if e.Data == nil {
		return ""
	}
	id, _ := e.Data["id"].(string)
	return id
}

// Marshal encodes Data and Metadata for event-store storage (§4.9).
func (e Envelope) Marshal() (data, metadata json.RawMessage, err error) {
	data, err = Canonical(e.Data)
	if err != nil {
		return nil, nil, err
	}
	metadata, err = json.Marshal(e.Metadata)
	if err != nil {
		return nil, nil, err
	}
	return data, metadata, nil
}
