// Package paras keeps the registry of parachains and parathreads: their
// lifecycle, current head data and validation code hash.
//
// Registration and removal are scheduled and only take effect at the next
// session change, so a para never appears or disappears mid-session.
package paras

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/multiformats/go-multihash"
	_ "github.com/multiformats/go-multihash/register/blake2"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// CodeHashCode is the multihash function used for validation code hashes.
const CodeHashCode = multihash.BLAKE2B_MIN + 31

var (
	// ErrAlreadyRegistered indicates a para that is registered or already scheduled.
	ErrAlreadyRegistered = errors.New("para already registered")
	// ErrUnknownPara indicates a para that is neither registered nor scheduled.
	ErrUnknownPara = errors.New("unknown para")
	// ErrEmptyCode indicates genesis args without validation code.
	ErrEmptyCode = errors.New("validation code is required")
	// ErrCodeTooLarge indicates validation code above the configured maximum.
	ErrCodeTooLarge = errors.New("validation code too large")
	// ErrHeadTooLarge indicates head data above the configured maximum.
	ErrHeadTooLarge = errors.New("head data too large")
)

// Lifecycle is the registration state of a para.
type Lifecycle string

const (
	LifecycleOnboarding  Lifecycle = "onboarding"
	LifecycleParathread  Lifecycle = "parathread"
	LifecycleParachain   Lifecycle = "parachain"
	LifecycleOffboarding Lifecycle = "offboarding"
)

// GenesisArgs describes a para at registration.
type GenesisArgs struct {
	Head      []byte
	Code      []byte
	Parachain bool
}

// Info is a read-only view of a registered para.
type Info struct {
	ID        primitives.ParaID
	Lifecycle Lifecycle
	Head      []byte
	CodeHash  multihash.Multihash
	// UpdatedAt is the block in which the head was last set.
	UpdatedAt primitives.BlockNumber
}

type para struct {
	lifecycle Lifecycle
	head      []byte
	codeHash  multihash.Multihash
	parachain bool
	updatedAt primitives.BlockNumber
}

// Module is the para registry.
type Module struct {
	config   configuration.Reader
	paras    map[primitives.ParaID]*para
	upcoming map[primitives.ParaID]GenesisArgs
	outgoing map[primitives.ParaID]struct{}
	now      primitives.BlockNumber
}

// New creates an empty registry validated against config.
func New(config configuration.Reader) *Module {
	return &Module{
		config:   config,
		paras:    make(map[primitives.ParaID]*para),
		upcoming: make(map[primitives.ParaID]GenesisArgs),
		outgoing: make(map[primitives.ParaID]struct{}),
	}
}

// CodeHash hashes validation code the way the registry stores it.
func CodeHash(code []byte) (multihash.Multihash, error) {
	return multihash.Sum(code, CodeHashCode, -1)
}

// ScheduleParaInitialize registers id at the next session change.
func (m *Module) ScheduleParaInitialize(id primitives.ParaID, args GenesisArgs) error {
	if _, ok := m.paras[id]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, id)
	}
	if _, ok := m.upcoming[id]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, id)
	}
	if len(args.Code) == 0 {
		return fmt.Errorf("%w: para %d", ErrEmptyCode, id)
	}
	cfg := m.config.Config()
	if uint64(len(args.Code)) > uint64(cfg.MaxCodeSize) {
		return fmt.Errorf("%w: para %d has %d bytes, max %d", ErrCodeTooLarge, id, len(args.Code), cfg.MaxCodeSize)
	}
	if uint64(len(args.Head)) > uint64(cfg.MaxHeadDataSize) {
		return fmt.Errorf("%w: para %d has %d bytes, max %d", ErrHeadTooLarge, id, len(args.Head), cfg.MaxHeadDataSize)
	}
	m.upcoming[id] = GenesisArgs{
		Head:      slices.Clone(args.Head),
		Code:      slices.Clone(args.Code),
		Parachain: args.Parachain,
	}
	return nil
}

// ScheduleParaCleanup removes id at the next session change. A para that was
// only scheduled is dropped immediately.
func (m *Module) ScheduleParaCleanup(id primitives.ParaID) error {
	if _, ok := m.upcoming[id]; ok {
		delete(m.upcoming, id)
		return nil
	}
	p, ok := m.paras[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPara, id)
	}
	p.lifecycle = LifecycleOffboarding
	m.outgoing[id] = struct{}{}
	return nil
}

// NoteNewHead records a para's head once its candidate became available.
func (m *Module) NoteNewHead(id primitives.ParaID, head []byte, now primitives.BlockNumber) error {
	p, ok := m.paras[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPara, id)
	}
	if limit := m.config.Config().MaxHeadDataSize; uint64(len(head)) > uint64(limit) {
		return fmt.Errorf("%w: para %d has %d bytes, max %d", ErrHeadTooLarge, id, len(head), limit)
	}
	p.head = slices.Clone(head)
	p.updatedAt = now
	return nil
}

// Parachains lists registered parachains in ascending id order. Parachains
// being offboarded stay listed until the session change removes them.
func (m *Module) Parachains() []primitives.ParaID {
	var ids []primitives.ParaID
	for id, p := range m.paras {
		if p.lifecycle == LifecycleParachain || (p.lifecycle == LifecycleOffboarding && p.parachain) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Parathreads lists registered parathreads in ascending id order.
func (m *Module) Parathreads() []primitives.ParaID {
	var ids []primitives.ParaID
	for id, p := range m.paras {
		if p.lifecycle == LifecycleParathread {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// IsValid reports whether id is registered and not being offboarded.
func (m *Module) IsValid(id primitives.ParaID) bool {
	p, ok := m.paras[id]
	return ok && p.lifecycle != LifecycleOffboarding
}

// Lifecycle returns the lifecycle of id, including scheduled paras.
func (m *Module) Lifecycle(id primitives.ParaID) (Lifecycle, bool) {
	if p, ok := m.paras[id]; ok {
		return p.lifecycle, true
	}
	if _, ok := m.upcoming[id]; ok {
		return LifecycleOnboarding, true
	}
	return "", false
}

// Head returns the current head data of id.
func (m *Module) Head(id primitives.ParaID) ([]byte, bool) {
	p, ok := m.paras[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(p.head), true
}

// CodeHashOf returns the validation code hash of id.
func (m *Module) CodeHashOf(id primitives.ParaID) (multihash.Multihash, bool) {
	p, ok := m.paras[id]
	if !ok {
		return nil, false
	}
	return p.codeHash, true
}

// Infos lists every registered para in ascending id order.
func (m *Module) Infos() []Info {
	ids := make([]primitives.ParaID, 0, len(m.paras))
	for id := range m.paras {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		p := m.paras[id]
		infos = append(infos, Info{ID: id, Lifecycle: p.lifecycle, Head: slices.Clone(p.head), CodeHash: p.codeHash, UpdatedAt: p.updatedAt})
	}
	return infos
}

// Initialize records the current block.
func (m *Module) Initialize(_ context.Context, now primitives.BlockNumber) primitives.Weight {
	m.now = now
	return 0
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession removes outgoing paras and onboards scheduled ones.
func (m *Module) OnNewSession(context.Context, *initializer.SessionChangeNotification) {
	for id := range m.outgoing {
		delete(m.paras, id)
	}
	clear(m.outgoing)

	for id, args := range m.upcoming {
		// Sum only fails for unknown codes; CodeHashCode is registered above.
		hash, err := CodeHash(args.Code)
		if err != nil {
			panic(fmt.Sprintf("paras: hash validation code: %v", err))
		}
		lifecycle := LifecycleParathread
		if args.Parachain {
			lifecycle = LifecycleParachain
		}
		m.paras[id] = &para{
			lifecycle: lifecycle,
			head:      args.Head,
			codeHash:  hash,
			parachain: args.Parachain,
			updatedAt: m.now,
		}
	}
	clear(m.upcoming)
}
