// Package chain executes blocks against the relay runtime.
//
// One block is: begin on system, advance the random beacon, let the session
// manager rotate, initialize the runtime, apply submitted calls, finalize the
// runtime, then seal the block hash. A failure at any step other than a call
// halts the chain; the partially executed block is never reported as
// committed.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/randomness"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/session"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/system"
)

const tracerName = "github.com/louisbranch/relaychain/internal/services/relay/domain/chain"

var (
	// ErrHalted indicates a chain that stopped after a failed block.
	ErrHalted = errors.New("chain halted")
	// ErrGenesisDone indicates a second genesis call.
	ErrGenesisDone = errors.New("genesis already applied")
	// ErrNoGenesis indicates block execution before genesis.
	ErrNoGenesis = errors.New("genesis not applied")
)

// Block summarizes an executed block.
type Block struct {
	Number         primitives.BlockNumber
	Hash           primitives.Hash
	ParentHash     primitives.Hash
	Weight         primitives.Weight
	Session        primitives.SessionIndex
	SessionRotated bool
	Validators     int
}

// Config wires a Chain.
type Config struct {
	System   *system.Module
	Beacon   *randomness.Beacon
	Sessions *session.Manager
	Runtime  *parachains.Runtime
	Tracer   trace.Tracer
	Logf     func(string, ...any)
}

// Chain drives block execution.
type Chain struct {
	system   *system.Module
	beacon   *randomness.Beacon
	sessions *session.Manager
	runtime  *parachains.Runtime
	tracer   trace.Tracer
	logf     func(string, ...any)

	mu      sync.RWMutex
	genesis bool
	halted  error
	last    Block

	callsMu     sync.Mutex
	calls       []*pendingCall
	callsClosed error
}

// New validates the wiring and registers the runtime as a session handler.
func New(cfg Config) (*Chain, error) {
	switch {
	case cfg.System == nil:
		return nil, errors.New("system module is required")
	case cfg.Beacon == nil:
		return nil, errors.New("random beacon is required")
	case cfg.Sessions == nil:
		return nil, errors.New("session manager is required")
	case cfg.Runtime == nil:
		return nil, errors.New("runtime is required")
	}
	c := &Chain{
		system:   cfg.System,
		beacon:   cfg.Beacon,
		sessions: cfg.Sessions,
		runtime:  cfg.Runtime,
		tracer:   cfg.Tracer,
		logf:     cfg.Logf,
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.logf == nil {
		c.logf = log.Printf
	}
	c.sessions.AddHandler(initializer.NewSessionHandler(cfg.Runtime.Initializer, cfg.Sessions))
	return c, nil
}

// Genesis announces the genesis validator set so the runtime applies
// session 0 at the end of block 1.
func (c *Chain) Genesis(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genesis {
		return ErrGenesisDone
	}
	err := c.runtime.Exclusive(func() error {
		if err := c.sessions.Genesis(ctx); err != nil {
			return err
		}
		return c.runtime.Initializer.OnNewSession(ctx, initializer.Announcement{
			Changed:      true,
			SessionIndex: c.sessions.CurrentIndex(),
			Validators:   c.sessions.Validators(),
			Queued:       c.sessions.Queued(),
		})
	})
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	c.genesis = true
	c.last = Block{Hash: c.system.LastHash(), Validators: len(c.sessions.Validators())}
	return nil
}

// ExecuteBlock runs the next block to completion.
func (c *Chain) ExecuteBlock(ctx context.Context) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halted != nil {
		return Block{}, fmt.Errorf("%w: %v", ErrHalted, c.halted)
	}
	if !c.genesis {
		return Block{}, ErrNoGenesis
	}

	number := c.system.BlockNumber() + 1
	ctx, span := c.tracer.Start(ctx, "chain.ExecuteBlock",
		trace.WithAttributes(attribute.Int64("block.number", int64(number))))
	defer span.End()

	calls := c.takeCalls()
	var (
		block    Block
		callErrs []error
	)
	err := c.runtime.Exclusive(func() error {
		var err error
		block, callErrs, err = c.execute(ctx, number, calls)
		return err
	})
	if err != nil {
		c.halted = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "block failed")
		haltErr := fmt.Errorf("%w: block %d: %v", ErrHalted, number, err)
		deliverCalls(calls, number, nil, haltErr)
		c.closeCalls(haltErr)
		return Block{}, fmt.Errorf("execute block %d: %w", number, err)
	}
	span.SetAttributes(attribute.Int("block.calls", len(calls)))
	c.last = block
	deliverCalls(calls, number, callErrs, nil)
	return block, nil
}

func (c *Chain) execute(ctx context.Context, number primitives.BlockNumber, calls []*pendingCall) (Block, []error, error) {
	if err := c.system.BeginBlock(number); err != nil {
		return Block{}, nil, err
	}
	parent := c.system.ParentHash()
	c.beacon.Advance(number, parent)

	rotated, err := c.sessions.OnInitialize(ctx, number)
	if err != nil {
		return Block{}, nil, fmt.Errorf("rotate session: %w", err)
	}
	weight, err := c.runtime.Initializer.Initialize(ctx, number)
	if err != nil {
		return Block{}, nil, err
	}
	callErrs := c.applyCalls(ctx, number, calls)
	if err := c.runtime.Initializer.Finalize(ctx); err != nil {
		return Block{}, nil, err
	}

	hash := blockHash(parent, number, weight, c.beacon.State())
	c.system.EndBlock(hash)
	if rotated {
		c.logf("block %d: session %d started", number, c.sessions.CurrentIndex())
	}
	return Block{
		Number:         number,
		Hash:           hash,
		ParentHash:     parent,
		Weight:         weight,
		Session:        c.sessions.CurrentIndex(),
		SessionRotated: rotated,
		Validators:     len(c.sessions.Validators()),
	}, callErrs, nil
}

// Last returns the most recently executed block.
func (c *Chain) Last() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Halted returns the error that stopped the chain, if any.
func (c *Chain) Halted() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

func blockHash(parent primitives.Hash, number primitives.BlockNumber, weight primitives.Weight, entropy [32]byte) primitives.Hash {
	var buf [32 + 4 + 8 + 32]byte
	copy(buf[:32], parent[:])
	binary.LittleEndian.PutUint32(buf[32:36], uint32(number))
	binary.LittleEndian.PutUint64(buf[36:44], uint64(weight))
	copy(buf[44:], entropy[:])
	return blake2b.Sum256(buf[:])
}
