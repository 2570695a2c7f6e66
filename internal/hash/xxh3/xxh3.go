// Package xxh3 provides fast non-cryptographic hashing for cache keys.
package xxh3

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Hasher implements validation.Hasher using 128-bit XXH3.
type Hasher struct{}

// New returns an XXH3 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:]), nil
}
