package initializer

import (
	"context"
	"fmt"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// Lifecycle is the block-level contract every subsystem implements. Hooks
// do not fail: a subsystem that cannot complete its bookkeeping is defective.
type Lifecycle interface {
	// Initialize performs block-start bookkeeping and reports its cost.
	Initialize(ctx context.Context, now primitives.BlockNumber) primitives.Weight
	// Finalize performs block-end bookkeeping.
	Finalize(ctx context.Context)
}

// Subsystem consumes session change notifications. OnNewSession must not
// announce another session change.
type Subsystem interface {
	Lifecycle
	OnNewSession(ctx context.Context, notification *SessionChangeNotification)
}

// Configuration produces the configuration fields of a notification, so its
// session hook receives the raw validator sets instead.
type Configuration interface {
	Lifecycle
	Config() configuration.HostConfiguration
	OnNewSession(ctx context.Context, validators, queued []primitives.ValidatorID)
}

// Subsystems is the fixed wiring table. Field order is lifecycle order.
type Subsystems struct {
	Configuration Configuration
	Paras         Subsystem
	Scheduler     Subsystem
	Inclusion     Subsystem
	SessionInfo   Subsystem
	DMP           Subsystem
	UMP           Subsystem
	HRMP          Subsystem
}

type namedSubsystem struct {
	name      string
	subsystem Subsystem
}

// consumers lists every subsystem after Configuration in initialize order.
func (s Subsystems) consumers() []namedSubsystem {
	return []namedSubsystem{
		{name: "paras", subsystem: s.Paras},
		{name: "scheduler", subsystem: s.Scheduler},
		{name: "inclusion", subsystem: s.Inclusion},
		{name: "session_info", subsystem: s.SessionInfo},
		{name: "dmp", subsystem: s.DMP},
		{name: "ump", subsystem: s.UMP},
		{name: "hrmp", subsystem: s.HRMP},
	}
}

func (s Subsystems) validate() error {
	if s.Configuration == nil {
		return fmt.Errorf("%w: configuration", ErrSubsystemRequired)
	}
	for _, entry := range s.consumers() {
		if entry.subsystem == nil {
			return fmt.Errorf("%w: %s", ErrSubsystemRequired, entry.name)
		}
	}
	return nil
}

// InitializeOrder returns subsystem names in the order Initialize calls them.
func InitializeOrder() []string {
	names := []string{"configuration"}
	for _, entry := range (Subsystems{}).consumers() {
		names = append(names, entry.name)
	}
	return names
}
