package protocol

import "github.com/google/uuid"

// NewID returns a fresh row id. Every durable entity is keyed by one of
// these, so identities stay stable across sessions and clients.
func NewID() string {
	return uuid.NewString()
}
