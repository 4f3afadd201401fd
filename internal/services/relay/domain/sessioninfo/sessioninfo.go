// Package sessioninfo keeps a window of per-session records used to check
// approvals and disputes after the session has ended.
package sessioninfo

import (
	"context"
	"maps"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// Groups reports the validator groups and cores of the current session.
type Groups interface {
	ValidatorGroups() [][]primitives.ValidatorIndex
	AvailabilityCores() int
}

// Info is the record kept for one session.
type Info struct {
	Validators              []primitives.ValidatorID      `json:"validators"`
	ValidatorGroups         [][]primitives.ValidatorIndex `json:"validator_groups"`
	NCores                  uint32                        `json:"n_cores"`
	ZerothDelayTrancheWidth uint32                        `json:"zeroth_delay_tranche_width"`
	RelayVRFModuloSamples   uint32                        `json:"relay_vrf_modulo_samples"`
	NDelayTranches          uint32                        `json:"n_delay_tranches"`
	NoShowSlots             uint32                        `json:"no_show_slots"`
	NeededApprovals         uint32                        `json:"needed_approvals"`
}

// Module stores session records within the dispute window.
type Module struct {
	groups   Groups
	sessions map[primitives.SessionIndex]Info
	earliest primitives.SessionIndex
}

// New creates an empty store reading groups from the scheduler.
func New(groups Groups) *Module {
	return &Module{groups: groups, sessions: make(map[primitives.SessionIndex]Info)}
}

// Session returns the record of index.
func (m *Module) Session(index primitives.SessionIndex) (Info, bool) {
	info, ok := m.sessions[index]
	return info, ok
}

// EarliestStoredSession returns the oldest session still kept.
func (m *Module) EarliestStoredSession() primitives.SessionIndex {
	return m.earliest
}

// Sessions lists stored session indices in ascending order.
func (m *Module) Sessions() []primitives.SessionIndex {
	return slices.Sorted(maps.Keys(m.sessions))
}

// Initialize performs block-start bookkeeping.
func (m *Module) Initialize(context.Context, primitives.BlockNumber) primitives.Weight {
	return 0
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession prunes records older than the dispute period and stores the
// new session. Groups come from the scheduler, which has already handled the
// same notification.
func (m *Module) OnNewSession(_ context.Context, n *initializer.SessionChangeNotification) {
	cfg := n.NewConfig
	earliest := n.SessionIndex.SaturatingSub(cfg.DisputePeriod)
	for index := range m.sessions {
		if index < earliest {
			delete(m.sessions, index)
		}
	}
	m.earliest = max(m.earliest, earliest)

	m.sessions[n.SessionIndex] = Info{
		Validators:              primitives.CloneValidators(n.Validators),
		ValidatorGroups:         m.groups.ValidatorGroups(),
		NCores:                  uint32(m.groups.AvailabilityCores()),
		ZerothDelayTrancheWidth: cfg.ZerothDelayTrancheWidth,
		RelayVRFModuloSamples:   cfg.RelayVRFModuloSamples,
		NDelayTranches:          cfg.NDelayTranches,
		NoShowSlots:             cfg.NoShowSlots,
		NeededApprovals:         cfg.NeededApprovals,
	}
}
