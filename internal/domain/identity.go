package domain

import (
	"crypto/ed25519"
	"time"
)

// Identity binds a DID to the Ed25519 key its requests are signed with.
type Identity struct {
	DID       string            `json:"did"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	CreatedAt time.Time         `json:"created_at"`
}
