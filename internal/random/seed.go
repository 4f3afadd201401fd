// Package random provides cryptographic seed generation helpers.
package random

import (
	crand "crypto/rand"
	"fmt"
)

// NewSeed32 generates a 32-byte seed using crypto/rand.
func NewSeed32() ([32]byte, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return [32]byte{}, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}
