// Package system tracks the block currently being executed and the hash of
// its parent.
package system

import (
	"errors"
	"fmt"
	"sync"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// ErrNonSequentialBlock indicates a block that does not follow the last one.
var ErrNonSequentialBlock = errors.New("block number is not sequential")

// Module holds the block header fields the runtime needs.
type Module struct {
	mu         sync.RWMutex
	number     primitives.BlockNumber
	parentHash primitives.Hash
	lastHash   primitives.Hash
}

// New starts at the genesis block with genesisHash as its hash.
func New(genesisHash primitives.Hash) *Module {
	return &Module{lastHash: genesisHash}
}

// BeginBlock moves to block number. Blocks must be consecutive.
func (m *Module) BeginBlock(number primitives.BlockNumber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if number != m.number+1 {
		return fmt.Errorf("%w: got %d after %d", ErrNonSequentialBlock, number, m.number)
	}
	m.number = number
	m.parentHash = m.lastHash
	return nil
}

// EndBlock records the hash of the current block.
func (m *Module) EndBlock(hash primitives.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHash = hash
}

// BlockNumber returns the current block number.
func (m *Module) BlockNumber() primitives.BlockNumber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.number
}

// ParentHash returns the parent of the current block.
func (m *Module) ParentHash() primitives.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parentHash
}

// LastHash returns the hash of the most recently completed block.
func (m *Module) LastHash() primitives.Hash {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHash
}
