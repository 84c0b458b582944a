package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID for row identifiers.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns a 64 character hex token for refresh, verification and
// reset flows.
func NewToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
