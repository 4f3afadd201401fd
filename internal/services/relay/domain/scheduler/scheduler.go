// Package scheduler assigns validator groups to availability cores.
//
// Cores and groups are rebuilt at every session change: one core per
// parachain plus the configured parathread cores, and validator groups drawn
// from a shuffle seeded by the session's random seed. Within a session the
// groups rotate across cores every GroupRotationFrequency blocks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

var (
	// ErrNoParathreadCores indicates a claim when no parathread core exists.
	ErrNoParathreadCores = errors.New("no parathread cores configured")
	// ErrClaimQueued indicates a parathread that already has a queued claim.
	ErrClaimQueued = errors.New("parathread claim already queued")
	// ErrNotParathread indicates a claim for a para that is not a parathread.
	ErrNotParathread = errors.New("para is not a parathread")
)

// CoreIndex identifies an availability core.
type CoreIndex uint32

// GroupIndex identifies a validator group.
type GroupIndex uint32

// Assignment schedules a para on a core for the current block.
type Assignment struct {
	Core  CoreIndex
	Para  primitives.ParaID
	Group GroupIndex
}

// ParaLister reports the registered paras.
type ParaLister interface {
	Parachains() []primitives.ParaID
	Parathreads() []primitives.ParaID
}

// Module holds cores, groups and the per-block schedule.
type Module struct {
	config configuration.Reader
	paras  ParaLister

	groups          [][]primitives.ValidatorIndex
	parachains      []primitives.ParaID
	parathreadCores int
	nCores          int
	sessionStart    primitives.BlockNumber
	now             primitives.BlockNumber

	claims    []primitives.ParaID
	scheduled []Assignment
	last      []Assignment
}

// New creates a scheduler with no cores until the first session change.
func New(config configuration.Reader, paras ParaLister) *Module {
	return &Module{config: config, paras: paras}
}

// AddParathreadClaim queues id for the next free parathread core.
func (m *Module) AddParathreadClaim(id primitives.ParaID) error {
	if m.config.Config().ParathreadCores == 0 {
		return ErrNoParathreadCores
	}
	if !slices.Contains(m.paras.Parathreads(), id) {
		return fmt.Errorf("%w: %d", ErrNotParathread, id)
	}
	if slices.Contains(m.claims, id) {
		return fmt.Errorf("%w: %d", ErrClaimQueued, id)
	}
	m.claims = append(m.claims, id)
	return nil
}

// ValidatorGroups returns the groups of the current session.
func (m *Module) ValidatorGroups() [][]primitives.ValidatorIndex {
	out := make([][]primitives.ValidatorIndex, len(m.groups))
	for i, g := range m.groups {
		out[i] = slices.Clone(g)
	}
	return out
}

// AvailabilityCores returns the number of cores in the current session.
func (m *Module) AvailabilityCores() int {
	return m.nCores
}

// SessionStartBlock returns the first block of the current session.
func (m *Module) SessionStartBlock() primitives.BlockNumber {
	return m.sessionStart
}

// Scheduled returns the assignments of the current block. It is empty
// outside Initialize/Finalize.
func (m *Module) Scheduled() []Assignment {
	return slices.Clone(m.scheduled)
}

// LastScheduled returns the assignments of the last finalized block.
func (m *Module) LastScheduled() []Assignment {
	return slices.Clone(m.last)
}

// GroupAssignedToCore returns the group on core at block now.
func (m *Module) GroupAssignedToCore(core CoreIndex, now primitives.BlockNumber) (GroupIndex, bool) {
	if int(core) >= m.nCores || len(m.groups) == 0 || now < m.sessionStart {
		return 0, false
	}
	rotations := uint64(0)
	if freq := m.config.Config().GroupRotationFrequency; freq > 0 {
		rotations = uint64(now-m.sessionStart) / uint64(freq)
	}
	return GroupIndex((uint64(core) + rotations) % uint64(len(m.groups))), true
}

// Initialize schedules parachains on their cores and hands queued
// parathread claims to free parathread cores.
func (m *Module) Initialize(_ context.Context, now primitives.BlockNumber) primitives.Weight {
	m.now = now
	m.scheduled = m.scheduled[:0]

	for i, id := range m.parachains {
		core := CoreIndex(i)
		group, ok := m.GroupAssignedToCore(core, now)
		if !ok {
			continue
		}
		m.scheduled = append(m.scheduled, Assignment{Core: core, Para: id, Group: group})
	}
	// Cores added by MaxValidatorsPerCore carry groups but no parathreads.
	limit := min(len(m.parachains)+m.parathreadCores, m.nCores)
	for core := len(m.parachains); core < limit && len(m.claims) > 0; core++ {
		group, ok := m.GroupAssignedToCore(CoreIndex(core), now)
		if !ok {
			break
		}
		m.scheduled = append(m.scheduled, Assignment{Core: CoreIndex(core), Para: m.claims[0], Group: group})
		m.claims = m.claims[1:]
	}
	return primitives.Weight(len(m.scheduled))
}

// Finalize clears the block schedule and keeps it as the last schedule.
func (m *Module) Finalize(context.Context) {
	m.last = slices.Clone(m.scheduled)
	m.scheduled = m.scheduled[:0]
}

// OnNewSession rebuilds cores and validator groups.
func (m *Module) OnNewSession(_ context.Context, n *initializer.SessionChangeNotification) {
	cfg := n.NewConfig
	m.parachains = m.paras.Parachains()
	m.claims = nil
	m.scheduled = m.scheduled[:0]
	m.sessionStart = m.now + 1
	m.parathreadCores = int(cfg.ParathreadCores)

	nValidators := len(n.Validators)
	nCores := len(m.parachains) + int(cfg.ParathreadCores)
	if cfg.MaxValidatorsPerCore > 0 {
		nCores = max(nCores, nValidators/int(cfg.MaxValidatorsPerCore))
	}
	m.nCores = nCores

	if nCores == 0 || nValidators == 0 {
		m.groups = nil
		return
	}

	shuffled := make([]primitives.ValidatorIndex, nValidators)
	for i := range shuffled {
		shuffled[i] = primitives.ValidatorIndex(i)
	}
	rng := rand.New(rand.NewChaCha8(n.RandomSeed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	// Groups differ in size by at most one; the first remainder groups take
	// the extra validator.
	nGroups := min(nCores, nValidators)
	base, larger := nValidators/nGroups, nValidators%nGroups
	groups := make([][]primitives.ValidatorIndex, 0, nGroups)
	offset := 0
	for i := range nGroups {
		size := base
		if i < larger {
			size++
		}
		groups = append(groups, shuffled[offset:offset+size])
		offset += size
	}
	m.groups = groups
}
