package scheduler

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

type staticConfig struct {
	cfg configuration.HostConfiguration
}

func (s *staticConfig) Config() configuration.HostConfiguration { return s.cfg }

type fakeParas struct {
	parachains  []primitives.ParaID
	parathreads []primitives.ParaID
}

func (f fakeParas) Parachains() []primitives.ParaID  { return f.parachains }
func (f fakeParas) Parathreads() []primitives.ParaID { return f.parathreads }

func validators(n int) []primitives.ValidatorID {
	out := make([]primitives.ValidatorID, n)
	for i := range out {
		out[i][0] = byte(i + 1)
	}
	return out
}

func notification(cfg configuration.HostConfiguration, n int, seed byte) *initializer.SessionChangeNotification {
	return &initializer.SessionChangeNotification{
		Validators: validators(n),
		NewConfig:  cfg,
		RandomSeed: [32]byte{seed},
	}
}

func TestOnNewSession_BuildsGroups(t *testing.T) {
	cfg := configuration.Default()
	cfg.MaxValidatorsPerCore = 0
	m := New(&staticConfig{cfg: cfg}, fakeParas{parachains: []primitives.ParaID{1, 2, 3}})

	m.OnNewSession(context.Background(), notification(cfg, 10, 7))

	if got := m.AvailabilityCores(); got != 3 {
		t.Fatalf("cores = %d, want 3", got)
	}
	groups := m.ValidatorGroups()
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	sizes := []int{len(groups[0]), len(groups[1]), len(groups[2])}
	if !reflect.DeepEqual(sizes, []int{4, 3, 3}) {
		t.Fatalf("group sizes = %v, want [4 3 3]", sizes)
	}
	var all []primitives.ValidatorIndex
	for _, g := range groups {
		all = append(all, g...)
	}
	slices.Sort(all)
	for i, v := range all {
		if v != primitives.ValidatorIndex(i) {
			t.Fatalf("validator %d missing from groups %v", i, groups)
		}
	}
}

func TestOnNewSession_ShuffleIsDeterministicPerSeed(t *testing.T) {
	cfg := configuration.Default()
	paras := fakeParas{parachains: []primitives.ParaID{1, 2}}

	a := New(&staticConfig{cfg: cfg}, paras)
	b := New(&staticConfig{cfg: cfg}, paras)
	a.OnNewSession(context.Background(), notification(cfg, 8, 1))
	b.OnNewSession(context.Background(), notification(cfg, 8, 1))
	if !reflect.DeepEqual(a.ValidatorGroups(), b.ValidatorGroups()) {
		t.Fatalf("same seed produced %v and %v", a.ValidatorGroups(), b.ValidatorGroups())
	}
}

func TestOnNewSession_MaxValidatorsPerCoreAddsCores(t *testing.T) {
	cfg := configuration.Default()
	cfg.MaxValidatorsPerCore = 2
	m := New(&staticConfig{cfg: cfg}, fakeParas{parachains: []primitives.ParaID{1}})

	m.OnNewSession(context.Background(), notification(cfg, 6, 0))

	if got := m.AvailabilityCores(); got != 3 {
		t.Fatalf("cores = %d, want 3", got)
	}
}

func TestOnNewSession_NoValidators(t *testing.T) {
	cfg := configuration.Default()
	m := New(&staticConfig{cfg: cfg}, fakeParas{parachains: []primitives.ParaID{1}})
	m.OnNewSession(context.Background(), notification(cfg, 0, 0))

	if groups := m.ValidatorGroups(); len(groups) != 0 {
		t.Fatalf("groups = %v, want none", groups)
	}
	if w := m.Initialize(context.Background(), 1); w != 0 {
		t.Fatalf("weight = %d, want 0", w)
	}
}

func TestInitialize_SchedulesAndRotates(t *testing.T) {
	cfg := configuration.Default()
	cfg.GroupRotationFrequency = 2
	cfg.MaxValidatorsPerCore = 0
	m := New(&staticConfig{cfg: cfg}, fakeParas{parachains: []primitives.ParaID{10, 20}})
	ctx := context.Background()

	m.OnNewSession(ctx, notification(cfg, 4, 3))
	if got := m.SessionStartBlock(); got != 1 {
		t.Fatalf("session start = %d, want 1", got)
	}

	if w := m.Initialize(ctx, 1); w != 2 {
		t.Fatalf("weight = %d, want 2", w)
	}
	want := []Assignment{{Core: 0, Para: 10, Group: 0}, {Core: 1, Para: 20, Group: 1}}
	if got := m.Scheduled(); !reflect.DeepEqual(got, want) {
		t.Fatalf("scheduled = %v, want %v", got, want)
	}
	m.Finalize(ctx)
	if got := m.Scheduled(); len(got) != 0 {
		t.Fatalf("scheduled after finalize = %v, want none", got)
	}

	m.Initialize(ctx, 3)
	want = []Assignment{{Core: 0, Para: 10, Group: 1}, {Core: 1, Para: 20, Group: 0}}
	if got := m.Scheduled(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rotated schedule = %v, want %v", got, want)
	}
}

func TestParathreadClaims(t *testing.T) {
	cfg := configuration.Default()
	cfg.ParathreadCores = 1
	cfg.MaxValidatorsPerCore = 0
	config := &staticConfig{cfg: cfg}
	m := New(config, fakeParas{parachains: []primitives.ParaID{1}, parathreads: []primitives.ParaID{5, 6}})
	ctx := context.Background()
	m.OnNewSession(ctx, notification(cfg, 4, 0))

	if err := m.AddParathreadClaim(1); !errors.Is(err, ErrNotParathread) {
		t.Fatalf("error = %v, want %v", err, ErrNotParathread)
	}
	if err := m.AddParathreadClaim(5); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := m.AddParathreadClaim(5); !errors.Is(err, ErrClaimQueued) {
		t.Fatalf("error = %v, want %v", err, ErrClaimQueued)
	}
	if err := m.AddParathreadClaim(6); err != nil {
		t.Fatalf("claim: %v", err)
	}

	m.Initialize(ctx, 1)
	scheduled := m.Scheduled()
	if len(scheduled) != 2 || scheduled[1].Para != 5 || scheduled[1].Core != 1 {
		t.Fatalf("scheduled = %v, want parathread 5 on core 1", scheduled)
	}
	m.Finalize(ctx)

	m.Initialize(ctx, 2)
	scheduled = m.Scheduled()
	if len(scheduled) != 2 || scheduled[1].Para != 6 {
		t.Fatalf("scheduled = %v, want parathread 6 next", scheduled)
	}

	config.cfg.ParathreadCores = 0
	if err := m.AddParathreadClaim(5); !errors.Is(err, ErrNoParathreadCores) {
		t.Fatalf("error = %v, want %v", err, ErrNoParathreadCores)
	}
}

func TestParathreadClaims_ExtraCoresStayUnclaimed(t *testing.T) {
	cfg := configuration.Default()
	cfg.ParathreadCores = 1
	cfg.MaxValidatorsPerCore = 1
	m := New(&staticConfig{cfg: cfg}, fakeParas{parathreads: []primitives.ParaID{10, 11, 12}})
	ctx := context.Background()
	m.OnNewSession(ctx, notification(cfg, 4, 0))
	if got := m.AvailabilityCores(); got != 4 {
		t.Fatalf("cores = %d, want 4", got)
	}
	for _, id := range []primitives.ParaID{10, 11, 12} {
		if err := m.AddParathreadClaim(id); err != nil {
			t.Fatalf("claim %d: %v", id, err)
		}
	}

	m.Initialize(ctx, 1)
	want := []Assignment{{Core: 0, Para: 10, Group: 0}}
	if got := m.Scheduled(); !reflect.DeepEqual(got, want) {
		t.Fatalf("scheduled = %v, want %v", got, want)
	}
	m.Finalize(ctx)

	m.Initialize(ctx, 2)
	if got := m.Scheduled(); len(got) != 1 || got[0].Para != 11 {
		t.Fatalf("scheduled = %v, want only parathread 11", got)
	}
}

func TestFinalize_KeepsLastSchedule(t *testing.T) {
	cfg := configuration.Default()
	cfg.MaxValidatorsPerCore = 0
	m := New(&staticConfig{cfg: cfg}, fakeParas{parachains: []primitives.ParaID{10}})
	ctx := context.Background()
	m.OnNewSession(ctx, notification(cfg, 2, 0))

	if got := m.LastScheduled(); len(got) != 0 {
		t.Fatalf("last scheduled before any block = %v, want none", got)
	}
	m.Initialize(ctx, 1)
	m.Finalize(ctx)

	want := []Assignment{{Core: 0, Para: 10, Group: 0}}
	if got := m.LastScheduled(); !reflect.DeepEqual(got, want) {
		t.Fatalf("last scheduled = %v, want %v", got, want)
	}
	if got := m.Scheduled(); len(got) != 0 {
		t.Fatalf("scheduled after finalize = %v, want none", got)
	}
}
