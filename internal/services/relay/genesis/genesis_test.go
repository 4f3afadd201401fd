package genesis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/storage/memory"
)

const sampleGenesis = `
chain_id: testnet
session_length: 5
block_time: 250ms
active_validators: 2
validators:
  - account: alice
    seed: alice
  - account: bob
    seed: bob
  - account: charlie
    seed: charlie
host_configuration:
  parathread_cores: 2
  needed_approvals: 3
paras:
  - id: 100
    parachain: true
    head: "0x0102"
    code: "deadbeef"
`

func TestParse_ResolvesDocument(t *testing.T) {
	g, err := Parse([]byte(sampleGenesis))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.ChainID != "testnet" || g.SessionLength != 5 || g.BlockTime != 250*time.Millisecond {
		t.Fatalf("genesis = %+v, want testnet with 5 block sessions every 250ms", g)
	}
	if len(g.Validators) != 3 || len(g.GenesisValidators()) != 2 || !g.Rotates() {
		t.Fatalf("validators = %d active = %d, want 3 and 2", len(g.Validators), len(g.GenesisValidators()))
	}
	if g.HostConfiguration.ParathreadCores != 2 || g.HostConfiguration.NeededApprovals != 3 {
		t.Fatalf("host configuration overrides not applied: %+v", g.HostConfiguration)
	}
	if g.HostConfiguration.MaxCodeSize != configuration.Default().MaxCodeSize {
		t.Fatalf("max code size = %d, want default %d", g.HostConfiguration.MaxCodeSize, configuration.Default().MaxCodeSize)
	}
	if len(g.Paras) != 1 || string(g.Paras[0].Args.Head) != "\x01\x02" || len(g.Paras[0].Args.Code) != 4 {
		t.Fatalf("paras = %+v, want para 100 with decoded head and code", g.Paras)
	}
}

func TestDeriveValidatorID_IsStable(t *testing.T) {
	a, err := DeriveValidatorID("alice")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := DeriveValidatorID("alice")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatalf("derive not stable: %s vs %s", a, b)
	}
	c, err := DeriveValidatorID("bob")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a == c {
		t.Fatal("distinct seeds derived the same id")
	}
}

func TestParse_ExplicitValidatorID(t *testing.T) {
	id, err := DeriveValidatorID("x")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	doc := "validators:\n  - id: " + id.String() + "\n"
	g, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Validators[0].ID != id || string(g.Validators[0].Account) != id.String() {
		t.Fatalf("validator = %+v, want id %s as account", g.Validators[0], id)
	}
	if g.SessionLength != DefaultSessionLength || g.BlockTime != DefaultBlockTime || g.ChainID != DefaultChainID {
		t.Fatalf("defaults not applied: %+v", g)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{name: "no validators", doc: "chain_id: x\n", want: ErrNoValidators},
		{name: "id and seed", doc: "validators:\n  - id: abc\n    seed: abc\n", want: ErrInvalidValidator},
		{name: "neither id nor seed", doc: "validators:\n  - account: a\n", want: ErrInvalidValidator},
		{name: "bad id", doc: "validators:\n  - id: \"0OIl\"\n", want: primitives.ErrInvalidValidatorID},
		{name: "duplicate", doc: "validators:\n  - seed: a\n  - seed: a\n", want: ErrDuplicateValidator},
		{name: "bad seed", doc: "randomness_seed: zz\nvalidators:\n  - seed: a\n", want: ErrInvalidSeed},
		{name: "bad config", doc: "host_configuration:\n  no_show_slots: 0\nvalidators:\n  - seed: a\n", want: configuration.ErrInvalidConfiguration},
		{name: "duplicate para", doc: "validators:\n  - seed: a\nparas:\n  - id: 1\n    code: aa\n  - id: 1\n    code: aa\n", want: ErrDuplicatePara},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(sampleGenesis), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApply_SchedulesParas(t *testing.T) {
	g := Dev()
	rt, err := parachains.New(parachains.Config{
		HostConfiguration: g.HostConfiguration,
		Store:             memory.New(),
		Logf:              func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	if err := g.Apply(rt); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if lc, ok := rt.Paras.Lifecycle(1000); !ok || lc != paras.LifecycleOnboarding {
		t.Fatalf("lifecycle = %q (ok=%v), want onboarding", lc, ok)
	}
	if err := g.Apply(rt); !errors.Is(err, paras.ErrAlreadyRegistered) {
		t.Fatalf("error = %v, want %v", err, paras.ErrAlreadyRegistered)
	}
}

func TestParse_RandomnessSeed(t *testing.T) {
	a, err := Parse([]byte("validators:\n  - seed: a\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := Parse([]byte("validators:\n  - seed: a\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.RandomnessSeed != b.RandomnessSeed {
		t.Fatal("derived seed differs between loads")
	}
	fresh, err := Parse([]byte("randomness_seed: random\nvalidators:\n  - seed: a\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fresh.RandomnessSeed == a.RandomnessSeed {
		t.Fatal("fresh seed equals the derived one")
	}
}
