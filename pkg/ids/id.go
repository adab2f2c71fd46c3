package ids

import (
	"github.com/google/uuid"
)

// View and session identifiers are opaque strings. UUIDv4 keeps them
// unguessable so a client cannot forge qualification calls for views it
// never recorded.

// NewViewID returns a fresh view identifier.
func NewViewID() string {
	return "vw_" + uuid.NewString()
}

// NewSessionID returns a fresh session identifier, used when the client
// did not supply one on its first view.
func NewSessionID() string {
	return "sess_" + uuid.NewString()
}

// NewTxID returns a fresh transaction identifier for the billing log.
func NewTxID() string {
	return "tx_" + uuid.NewString()
}
