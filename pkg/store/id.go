package store

import (
	"crypto/rand"
	"encoding/hex"
)

// newToken returns an opaque login session token.
func newToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
