package inclusion

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/scheduler"
)

type staticConfig struct {
	cfg configuration.HostConfiguration
}

func (s staticConfig) Config() configuration.HostConfiguration { return s.cfg }

type fakeSchedule []scheduler.Assignment

func (f fakeSchedule) Scheduled() []scheduler.Assignment { return f }

type recordedHead struct {
	para primitives.ParaID
	head []byte
	now  primitives.BlockNumber
}

type fakeHeads struct {
	heads []recordedHead
	err   error
}

func (f *fakeHeads) NoteNewHead(id primitives.ParaID, head []byte, now primitives.BlockNumber) error {
	if f.err != nil {
		return f.err
	}
	f.heads = append(f.heads, recordedHead{para: id, head: head, now: now})
	return nil
}

func newModule(heads *fakeHeads) *Module {
	cfg := configuration.Default()
	cfg.ChainAvailabilityPeriod = 3
	schedule := fakeSchedule{{Core: 0, Para: 100, Group: 1}}
	return New(staticConfig{cfg: cfg}, schedule, heads)
}

func TestBackCandidate_RequiresSchedule(t *testing.T) {
	m := newModule(&fakeHeads{})
	m.Initialize(context.Background(), 1)

	if err := m.BackCandidate(200, []byte{1}); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("error = %v, want %v", err, ErrNotScheduled)
	}
	if err := m.BackCandidate(100, []byte{1}); err != nil {
		t.Fatalf("back candidate: %v", err)
	}
	if err := m.BackCandidate(100, []byte{2}); !errors.Is(err, ErrCandidatePending) {
		t.Fatalf("error = %v, want %v", err, ErrCandidatePending)
	}
	pending := m.PendingAvailability()
	if len(pending) != 1 || pending[0].Group != 1 || pending[0].BackedIn != 1 {
		t.Fatalf("pending = %+v, want one candidate from group 1 backed in block 1", pending)
	}
}

func TestNoteAvailable_EnactsHead(t *testing.T) {
	heads := &fakeHeads{}
	m := newModule(heads)
	m.Initialize(context.Background(), 1)
	if err := m.BackCandidate(100, []byte{7}); err != nil {
		t.Fatalf("back candidate: %v", err)
	}
	m.Initialize(context.Background(), 2)

	if err := m.NoteAvailable(100); err != nil {
		t.Fatalf("note available: %v", err)
	}
	if len(heads.heads) != 1 || heads.heads[0].para != 100 || heads.heads[0].now != 2 {
		t.Fatalf("heads = %+v, want para 100 enacted at block 2", heads.heads)
	}
	if err := m.NoteAvailable(100); !errors.Is(err, ErrNoPendingCandidate) {
		t.Fatalf("error = %v, want %v", err, ErrNoPendingCandidate)
	}
}

func TestNoteAvailable_KeepsCandidateOnRegistryError(t *testing.T) {
	boom := errors.New("boom")
	m := newModule(&fakeHeads{err: boom})
	m.Initialize(context.Background(), 1)
	if err := m.BackCandidate(100, nil); err != nil {
		t.Fatalf("back candidate: %v", err)
	}
	if err := m.NoteAvailable(100); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if len(m.PendingAvailability()) != 1 {
		t.Fatal("candidate dropped after failed enactment")
	}
}

func TestInitialize_TimesOutCandidates(t *testing.T) {
	m := newModule(&fakeHeads{})
	ctx := context.Background()
	m.Initialize(ctx, 1)
	if err := m.BackCandidate(100, nil); err != nil {
		t.Fatalf("back candidate: %v", err)
	}

	if w := m.Initialize(ctx, 3); w != 0 {
		t.Fatalf("weight = %d, want 0 before timeout", w)
	}
	if w := m.Initialize(ctx, 4); w != 1 {
		t.Fatalf("weight = %d, want 1 at timeout", w)
	}
	if m.TimedOut() != 1 || len(m.PendingAvailability()) != 0 {
		t.Fatalf("timed out = %d pending = %d, want 1 and 0", m.TimedOut(), len(m.PendingAvailability()))
	}
}

func TestOnNewSession_ClearsPending(t *testing.T) {
	m := newModule(&fakeHeads{})
	m.Initialize(context.Background(), 1)
	if err := m.BackCandidate(100, nil); err != nil {
		t.Fatalf("back candidate: %v", err)
	}
	m.OnNewSession(context.Background(), &initializer.SessionChangeNotification{})
	if got := m.PendingAvailability(); len(got) != 0 {
		t.Fatalf("pending = %v, want none", got)
	}
}

func TestBackCandidate_RejectsLargeHead(t *testing.T) {
	m := newModule(&fakeHeads{})
	limit := configuration.Default().MaxHeadDataSize
	if err := m.BackCandidate(100, make([]byte, limit+1)); !errors.Is(err, ErrHeadTooLarge) {
		t.Fatalf("error = %v, want %v", err, ErrHeadTooLarge)
	}
}
