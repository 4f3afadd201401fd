// Package randomness provides the per-block random beacon consumed by the
// initializer when it seeds a new session.
//
// Consumers treat the output as opaque bytes of unspecified length keyed by
// a domain-separation subject.
package randomness

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// Source yields randomness for a domain-separation subject.
type Source interface {
	Random(subject []byte) []byte
}

// SourceFunc adapts a function to Source.
type SourceFunc func(subject []byte) []byte

// Random implements Source.
func (fn SourceFunc) Random(subject []byte) []byte {
	return fn(subject)
}

// Beacon is a rolling blake2b accumulator advanced once per block. Equal
// genesis seeds and equal block inputs produce equal outputs, so replicas
// derive the same session seeds.
type Beacon struct {
	state [32]byte
}

// NewBeacon seeds a beacon from genesis entropy.
func NewBeacon(seed [32]byte) *Beacon {
	return &Beacon{state: blake2b.Sum256(seed[:])}
}

// Advance mixes the block number and parent hash into the beacon state.
func (b *Beacon) Advance(number primitives.BlockNumber, parent primitives.Hash) {
	var buf [32 + 4 + 32]byte
	copy(buf[:32], b.state[:])
	binary.LittleEndian.PutUint32(buf[32:36], uint32(number))
	copy(buf[36:], parent[:])
	b.state = blake2b.Sum256(buf[:])
}

// State returns the current accumulator value.
func (b *Beacon) State() [32]byte {
	return b.state
}

// Random returns blake2b-256 of subject keyed by the current state.
func (b *Beacon) Random(subject []byte) []byte {
	mac, err := blake2b.New256(b.state[:])
	if err != nil {
		// A 32-byte key is always accepted by blake2b.New256.
		panic(fmt.Sprintf("randomness: keyed blake2b: %v", err))
	}
	_, _ = mac.Write(subject)
	return mac.Sum(nil)
}

// Seed32 reads a 32-byte seed for subject from src. Shorter outputs are
// zero-padded on the right and longer ones truncated.
func Seed32(src Source, subject []byte) [32]byte {
	var seed [32]byte
	if src == nil {
		return seed
	}
	copy(seed[:], src.Random(subject))
	return seed
}
