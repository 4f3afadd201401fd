package parachains

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/hrmp"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/scheduler"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/sessioninfo"
)

// Snapshot is a read-only copy of runtime state taken between blocks.
type Snapshot struct {
	Initialized           bool
	BufferedChanges       int
	Config                configuration.HostConfiguration
	PendingConfig         *configuration.HostConfiguration
	Paras                 []paras.Info
	ValidatorGroups       [][]primitives.ValidatorIndex
	AvailabilityCores     int
	SessionStartBlock     primitives.BlockNumber
	Scheduled             []scheduler.Assignment
	PendingAvailability   int
	StoredSessions        []primitives.SessionIndex
	EarliestStoredSession primitives.SessionIndex
	DownwardQueues        map[primitives.ParaID]int
	UpwardDispatched      uint64
	Channels              []hrmp.Channel
}

// Snapshot copies the current runtime state.
func (r *Runtime) Snapshot(ctx context.Context) (Snapshot, error) {
	if r == nil {
		return Snapshot{}, errors.New("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	initialized, err := r.Initializer.HasInitialized(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read initialized marker: %w", err)
	}
	buffered, err := r.Initializer.BufferedSessionChanges(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read buffered session changes: %w", err)
	}

	snap := Snapshot{
		Initialized:           initialized,
		BufferedChanges:       len(buffered),
		Config:                r.Configuration.Config(),
		Paras:                 r.Paras.Infos(),
		ValidatorGroups:       r.Scheduler.ValidatorGroups(),
		AvailabilityCores:     r.Scheduler.AvailabilityCores(),
		SessionStartBlock:     r.Scheduler.SessionStartBlock(),
		Scheduled:             r.Scheduler.LastScheduled(),
		PendingAvailability:   len(r.Inclusion.PendingAvailability()),
		StoredSessions:        r.SessionInfo.Sessions(),
		EarliestStoredSession: r.SessionInfo.EarliestStoredSession(),
		DownwardQueues:        r.DMP.QueueLens(),
		UpwardDispatched:      r.UMP.Dispatched(),
		Channels:              r.HRMP.Channels(),
	}
	if pending, ok := r.Configuration.Pending(); ok {
		snap.PendingConfig = &pending
	}
	return snap, nil
}

// LookupSessionInfo returns the stored record of a session.
func (r *Runtime) LookupSessionInfo(index primitives.SessionIndex) (sessioninfo.Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SessionInfo.Session(index)
}
