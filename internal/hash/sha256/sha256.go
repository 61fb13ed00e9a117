// Package sha256 provides the checksum used to fingerprint downloaded assets.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix marks checksums produced by this package.
const Prefix = "sha256:"

// Hasher implements catalog.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the algorithm-prefixed hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:]), nil
}
