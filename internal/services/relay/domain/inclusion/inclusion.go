// Package inclusion tracks backed parachain candidates until they become
// available, then hands their new head to the para registry.
package inclusion

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/scheduler"
)

var (
	// ErrNotScheduled indicates a candidate for a para without a core this block.
	ErrNotScheduled = errors.New("para not scheduled in this block")
	// ErrCandidatePending indicates a para whose previous candidate is still pending.
	ErrCandidatePending = errors.New("candidate already pending availability")
	// ErrNoPendingCandidate indicates an availability note with nothing pending.
	ErrNoPendingCandidate = errors.New("no candidate pending availability")
	// ErrHeadTooLarge indicates a candidate head above the configured maximum.
	ErrHeadTooLarge = errors.New("candidate head data too large")
)

// Schedule reports the current block assignments.
type Schedule interface {
	Scheduled() []scheduler.Assignment
}

// HeadRecorder accepts heads of candidates that became available.
type HeadRecorder interface {
	NoteNewHead(id primitives.ParaID, head []byte, now primitives.BlockNumber) error
}

// Candidate is a backed candidate waiting for availability.
type Candidate struct {
	Para     primitives.ParaID
	Core     scheduler.CoreIndex
	Group    scheduler.GroupIndex
	Head     []byte
	BackedIn primitives.BlockNumber
}

// Module holds candidates pending availability.
type Module struct {
	config   configuration.Reader
	schedule Schedule
	heads    HeadRecorder

	pending  map[primitives.ParaID]Candidate
	now      primitives.BlockNumber
	timedOut uint64
}

// New creates an inclusion module.
func New(config configuration.Reader, schedule Schedule, heads HeadRecorder) *Module {
	return &Module{
		config:   config,
		schedule: schedule,
		heads:    heads,
		pending:  make(map[primitives.ParaID]Candidate),
	}
}

// BackCandidate records a candidate for a para scheduled in the current block.
func (m *Module) BackCandidate(para primitives.ParaID, head []byte) error {
	if limit := m.config.Config().MaxHeadDataSize; uint64(len(head)) > uint64(limit) {
		return fmt.Errorf("%w: %d bytes, max %d", ErrHeadTooLarge, len(head), limit)
	}
	if _, ok := m.pending[para]; ok {
		return fmt.Errorf("%w: para %d", ErrCandidatePending, para)
	}
	idx := slices.IndexFunc(m.schedule.Scheduled(), func(a scheduler.Assignment) bool {
		return a.Para == para
	})
	if idx < 0 {
		return fmt.Errorf("%w: para %d", ErrNotScheduled, para)
	}
	assignment := m.schedule.Scheduled()[idx]
	m.pending[para] = Candidate{
		Para:     para,
		Core:     assignment.Core,
		Group:    assignment.Group,
		Head:     slices.Clone(head),
		BackedIn: m.now,
	}
	return nil
}

// NoteAvailable enacts the pending candidate of para.
func (m *Module) NoteAvailable(para primitives.ParaID) error {
	candidate, ok := m.pending[para]
	if !ok {
		return fmt.Errorf("%w: para %d", ErrNoPendingCandidate, para)
	}
	if err := m.heads.NoteNewHead(para, candidate.Head, m.now); err != nil {
		return fmt.Errorf("enact candidate for para %d: %w", para, err)
	}
	delete(m.pending, para)
	return nil
}

// PendingAvailability lists pending candidates in ascending para order.
func (m *Module) PendingAvailability() []Candidate {
	ids := slices.Sorted(maps.Keys(m.pending))
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.pending[id])
	}
	return out
}

// TimedOut reports how many candidates were dropped for missing availability.
func (m *Module) TimedOut() uint64 {
	return m.timedOut
}

// Initialize drops candidates that waited longer than the availability period.
func (m *Module) Initialize(_ context.Context, now primitives.BlockNumber) primitives.Weight {
	m.now = now
	period := m.config.Config().ChainAvailabilityPeriod
	var dropped primitives.Weight
	for id, candidate := range m.pending {
		if now-candidate.BackedIn >= period {
			delete(m.pending, id)
			dropped++
		}
	}
	m.timedOut += uint64(dropped)
	return dropped
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession drops every pending candidate: their cores no longer exist.
func (m *Module) OnNewSession(context.Context, *initializer.SessionChangeNotification) {
	clear(m.pending)
}
