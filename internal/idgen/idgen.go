// Package idgen generates random identifiers for stored records and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Prefixes used across the service.
const (
	PrefixFlag    = "flg_"
	PrefixRequest = "req_"
)

// WithPrefix returns prefix followed by 24 random hex characters.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// FlagID returns a new flag identifier.
func FlagID() string {
	return WithPrefix(PrefixFlag)
}

// Hex returns numBytes of randomness hex-encoded. It panics if the system
// random source fails, which leaves no safe way to continue.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
