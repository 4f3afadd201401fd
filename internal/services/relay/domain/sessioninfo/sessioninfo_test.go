package sessioninfo

import (
	"context"
	"reflect"
	"testing"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

type fakeGroups struct {
	groups [][]primitives.ValidatorIndex
}

func (f fakeGroups) ValidatorGroups() [][]primitives.ValidatorIndex { return f.groups }
func (f fakeGroups) AvailabilityCores() int                         { return len(f.groups) }

func notify(m *Module, index primitives.SessionIndex, disputePeriod primitives.SessionIndex) {
	cfg := configuration.Default()
	cfg.DisputePeriod = disputePeriod
	m.OnNewSession(context.Background(), &initializer.SessionChangeNotification{
		Validators:   []primitives.ValidatorID{{1}, {2}},
		NewConfig:    cfg,
		SessionIndex: index,
	})
}

func TestOnNewSession_StoresInfo(t *testing.T) {
	groups := [][]primitives.ValidatorIndex{{0}, {1}}
	m := New(fakeGroups{groups: groups})
	notify(m, 1, 6)

	info, ok := m.Session(1)
	if !ok {
		t.Fatal("expected session 1 info")
	}
	if !reflect.DeepEqual(info.ValidatorGroups, groups) || info.NCores != 2 {
		t.Fatalf("info = %+v, want groups %v on 2 cores", info, groups)
	}
	if len(info.Validators) != 2 {
		t.Fatalf("validators = %d, want 2", len(info.Validators))
	}
	if info.NeededApprovals != configuration.Default().NeededApprovals {
		t.Fatalf("needed approvals = %d, want %d", info.NeededApprovals, configuration.Default().NeededApprovals)
	}
}

func TestOnNewSession_PrunesOutsideDisputePeriod(t *testing.T) {
	m := New(fakeGroups{})
	for i := primitives.SessionIndex(1); i <= 5; i++ {
		notify(m, i, 2)
	}

	if got, want := m.Sessions(), []primitives.SessionIndex{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sessions = %v, want %v", got, want)
	}
	if got := m.EarliestStoredSession(); got != 3 {
		t.Fatalf("earliest = %d, want 3", got)
	}
	if _, ok := m.Session(2); ok {
		t.Fatal("session 2 should be pruned")
	}
}

func TestOnNewSession_EarlySessionsNotPruned(t *testing.T) {
	m := New(fakeGroups{})
	notify(m, 0, 6)
	notify(m, 1, 6)
	if got, want := m.Sessions(), []primitives.SessionIndex{0, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sessions = %v, want %v", got, want)
	}
	if got := m.EarliestStoredSession(); got != 0 {
		t.Fatalf("earliest = %d, want 0", got)
	}
}
