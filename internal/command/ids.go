package command

import "github.com/google/uuid"

// randomEventID generates the random 128-bit identifier §4.5 step 6
// assigns to self-generated events, using the pack's own google/uuid
// dependency (go-crablet uses it for DCB's own event and tag IDs)
// rather than hand-rolling a random-bytes-to-hex encoder.
func randomEventID() string {
	return uuid.NewString()
}
