package initializer

import (
	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/storage"
)

// RandomSeedSubject is the domain-separation tag for session random seeds.
const RandomSeedSubject = "paras"

// SessionChangeNotification describes a session change that has just been
// applied. It is built once per applied change and must be treated as
// read-only by every subsystem that receives it.
type SessionChangeNotification struct {
	// Validators is the active set of the new session.
	Validators []primitives.ValidatorID
	// Queued is the set queued for the following session.
	Queued []primitives.ValidatorID
	// PrevConfig is the configuration before the change was handled.
	PrevConfig configuration.HostConfiguration
	// NewConfig is the configuration after Configuration handled the change.
	NewConfig configuration.HostConfiguration
	// RandomSeed is drawn from the randomness source when the change is applied.
	RandomSeed [32]byte
	// SessionIndex is the index of the new session.
	SessionIndex primitives.SessionIndex
}

// BufferedSessionChange is a session change waiting for the end of the block.
type BufferedSessionChange = storage.BufferedSessionChange

// Announcement is a session change pushed in by the session manager.
type Announcement struct {
	// Changed reports whether the validator set differs from the previous
	// session. It is informational and does not gate buffering.
	Changed      bool
	SessionIndex primitives.SessionIndex
	Validators   []primitives.AccountValidator
	// Queued is the set for the session after next. A nil slice means no
	// queued set was announced, in which case the validators are queued.
	Queued []primitives.AccountValidator
}

func (a Announcement) buffered() BufferedSessionChange {
	validators := primitives.ValidatorIDs(a.Validators)
	queued := primitives.CloneValidators(validators)
	if a.Queued != nil {
		queued = primitives.ValidatorIDs(a.Queued)
	}
	return BufferedSessionChange{
		Validators:   validators,
		Queued:       queued,
		SessionIndex: a.SessionIndex,
	}
}
