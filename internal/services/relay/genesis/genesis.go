// Package genesis loads the chain specification a relay node starts from:
// session length, block time, validator set, host configuration and the
// paras registered at genesis.
package genesis

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"gopkg.in/yaml.v3"

	"github.com/louisbranch/relaychain/internal/random"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

const (
	// DefaultChainID names the development chain.
	DefaultChainID = "relaychain-dev"
	// DefaultSessionLength is the session length when the file sets none.
	DefaultSessionLength primitives.BlockNumber = 10
	// DefaultBlockTime is the block interval when the file sets none.
	DefaultBlockTime = time.Second

	// RandomSeedFresh asks for a seed drawn from crypto/rand at load time.
	RandomSeedFresh = "random"

	hkdfInfoValidator = "relaychain/validator/ed25519/v1"
)

var (
	// ErrNoValidators indicates a genesis without validators.
	ErrNoValidators = errors.New("genesis requires at least one validator")
	// ErrInvalidValidator indicates a validator entry that sets neither or both of id and seed.
	ErrInvalidValidator = errors.New("validator needs exactly one of id or seed")
	// ErrDuplicateValidator indicates two entries resolving to the same id.
	ErrDuplicateValidator = errors.New("duplicate validator")
	// ErrDuplicatePara indicates two paras with the same id.
	ErrDuplicatePara = errors.New("duplicate para")
	// ErrInvalidSeed indicates a randomness seed that is not 32 hex bytes.
	ErrInvalidSeed = errors.New("randomness seed must be 32 hex-encoded bytes")
)

// ValidatorSpec is one validator entry of the genesis file.
type ValidatorSpec struct {
	Account string `yaml:"account"`
	// ID is the base58 validator public key.
	ID string `yaml:"id,omitempty"`
	// Seed derives the validator key, for development chains.
	Seed string `yaml:"seed,omitempty"`
}

// ParaSpec is one para registered at genesis.
type ParaSpec struct {
	ID        primitives.ParaID `yaml:"id"`
	Parachain bool              `yaml:"parachain"`
	Head      string            `yaml:"head"`
	Code      string            `yaml:"code"`
}

// File is the on-disk genesis document.
type File struct {
	ChainID           string                          `yaml:"chain_id"`
	SessionLength     primitives.BlockNumber          `yaml:"session_length"`
	BlockTime         time.Duration                   `yaml:"block_time"`
	RandomnessSeed    string                          `yaml:"randomness_seed"`
	ActiveValidators  int                             `yaml:"active_validators"`
	Validators        []ValidatorSpec                 `yaml:"validators"`
	HostConfiguration configuration.HostConfiguration `yaml:"host_configuration"`
	Paras             []ParaSpec                      `yaml:"paras"`
}

// Para is a resolved genesis para.
type Para struct {
	ID   primitives.ParaID
	Args paras.GenesisArgs
}

// Genesis is the resolved chain specification.
type Genesis struct {
	ChainID           string
	SessionLength     primitives.BlockNumber
	BlockTime         time.Duration
	RandomnessSeed    [32]byte
	ActiveValidators  int
	Validators        []primitives.AccountValidator
	HostConfiguration configuration.HostConfiguration
	Paras             []Para
}

// Load reads and resolves a genesis file.
func Load(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data)
}

// Parse resolves a genesis document. Host configuration fields the document
// omits keep their default values.
func Parse(data []byte) (Genesis, error) {
	file := File{HostConfiguration: configuration.Default()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis: %w", err)
	}
	return file.Resolve()
}

// Dev returns the development chain: four seeded validators and one parachain.
func Dev() Genesis {
	file := File{
		HostConfiguration: configuration.Default(),
		Validators: []ValidatorSpec{
			{Account: "alice", Seed: "alice"},
			{Account: "bob", Seed: "bob"},
			{Account: "charlie", Seed: "charlie"},
			{Account: "dave", Seed: "dave"},
		},
		Paras: []ParaSpec{
			{ID: 1000, Parachain: true, Head: "00", Code: hex.EncodeToString([]byte("relaychain-dev-para"))},
		},
	}
	g, err := file.Resolve()
	if err != nil {
		panic(fmt.Sprintf("genesis: dev chain: %v", err))
	}
	return g
}

// Resolve validates the document and fills defaults.
func (f File) Resolve() (Genesis, error) {
	g := Genesis{
		ChainID:           strings.TrimSpace(f.ChainID),
		SessionLength:     f.SessionLength,
		BlockTime:         f.BlockTime,
		ActiveValidators:  f.ActiveValidators,
		HostConfiguration: f.HostConfiguration,
	}
	if g.ChainID == "" {
		g.ChainID = DefaultChainID
	}
	if g.SessionLength == 0 {
		g.SessionLength = DefaultSessionLength
	}
	if g.BlockTime <= 0 {
		g.BlockTime = DefaultBlockTime
	}
	if err := g.HostConfiguration.Validate(); err != nil {
		return Genesis{}, err
	}

	seed, err := resolveSeed(f.RandomnessSeed, g.ChainID)
	if err != nil {
		return Genesis{}, err
	}
	g.RandomnessSeed = seed

	if len(f.Validators) == 0 {
		return Genesis{}, ErrNoValidators
	}
	seen := make(map[primitives.ValidatorID]struct{}, len(f.Validators))
	for i, spec := range f.Validators {
		v, err := spec.resolve()
		if err != nil {
			return Genesis{}, fmt.Errorf("validator %d: %w", i, err)
		}
		if _, ok := seen[v.ID]; ok {
			return Genesis{}, fmt.Errorf("%w: %s", ErrDuplicateValidator, v.ID)
		}
		seen[v.ID] = struct{}{}
		g.Validators = append(g.Validators, v)
	}
	if g.ActiveValidators <= 0 || g.ActiveValidators > len(g.Validators) {
		g.ActiveValidators = len(g.Validators)
	}

	seenParas := make(map[primitives.ParaID]struct{}, len(f.Paras))
	for _, spec := range f.Paras {
		if _, ok := seenParas[spec.ID]; ok {
			return Genesis{}, fmt.Errorf("%w: %d", ErrDuplicatePara, spec.ID)
		}
		seenParas[spec.ID] = struct{}{}
		head, err := decodeHex(spec.Head)
		if err != nil {
			return Genesis{}, fmt.Errorf("para %d head: %w", spec.ID, err)
		}
		code, err := decodeHex(spec.Code)
		if err != nil {
			return Genesis{}, fmt.Errorf("para %d code: %w", spec.ID, err)
		}
		g.Paras = append(g.Paras, Para{ID: spec.ID, Args: paras.GenesisArgs{Head: head, Code: code, Parachain: spec.Parachain}})
	}
	return g, nil
}

// GenesisValidators returns the set active in session 0.
func (g Genesis) GenesisValidators() []primitives.AccountValidator {
	return g.Validators[:g.ActiveValidators]
}

// Rotates reports whether sessions draw from a larger validator pool.
func (g Genesis) Rotates() bool {
	return g.ActiveValidators < len(g.Validators)
}

// Apply schedules the genesis paras on the runtime. They onboard with the
// genesis session change at the end of block 1.
func (g Genesis) Apply(rt *parachains.Runtime) error {
	for _, p := range g.Paras {
		if err := rt.ScheduleParaInitialize(p.ID, p.Args); err != nil {
			return fmt.Errorf("register genesis para %d: %w", p.ID, err)
		}
	}
	return nil
}

// DeriveValidatorID derives an ed25519 validator key from a development seed.
func DeriveValidatorID(seed string) (primitives.ValidatorID, error) {
	reader := hkdf.New(sha256.New, []byte(seed), nil, []byte(hkdfInfoValidator))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, keySeed); err != nil {
		return primitives.ValidatorID{}, fmt.Errorf("derive validator key: %w", err)
	}
	pub := ed25519.NewKeyFromSeed(keySeed).Public().(ed25519.PublicKey)
	return primitives.ValidatorIDFromBytes(pub)
}

func (s ValidatorSpec) resolve() (primitives.AccountValidator, error) {
	id, seed := strings.TrimSpace(s.ID), strings.TrimSpace(s.Seed)
	if (id == "") == (seed == "") {
		return primitives.AccountValidator{}, ErrInvalidValidator
	}
	var (
		vid primitives.ValidatorID
		err error
	)
	if id != "" {
		vid, err = primitives.ParseValidatorID(id)
	} else {
		vid, err = DeriveValidatorID(seed)
	}
	if err != nil {
		return primitives.AccountValidator{}, err
	}
	account := strings.TrimSpace(s.Account)
	if account == "" {
		account = vid.String()
	}
	return primitives.AccountValidator{Account: primitives.AccountID(account), ID: vid}, nil
}

func resolveSeed(text, chainID string) ([32]byte, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "0x")
	switch text {
	case "":
		return blake2b.Sum256([]byte(chainID)), nil
	case RandomSeedFresh:
		return random.NewSeed32()
	}
	raw, err := hex.DecodeString(text)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, ErrInvalidSeed
	}
	var seed [32]byte
	copy(seed[:], raw)
	return seed, nil
}

func decodeHex(text string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(text), "0x"))
}
