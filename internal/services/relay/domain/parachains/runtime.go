// Package parachains composes the parachain subsystems and the initializer
// into one runtime.
//
// The runtime is built once at wiring time. Block execution and read-only
// snapshots are serialized behind a single mutex so the inspector API never
// observes a half-executed block.
package parachains

import (
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/dmp"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/hrmp"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/inclusion"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/randomness"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/scheduler"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/sessioninfo"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/ump"
	"github.com/louisbranch/relaychain/internal/services/relay/storage"
)

// Config wires a Runtime.
type Config struct {
	HostConfiguration configuration.HostConfiguration
	Store             storage.InitializerStore
	Randomness        randomness.Source
	Clock             initializer.Clock
	Observer          initializer.Observer
	Tracer            trace.Tracer
	UpwardSink        ump.Sink
	Logf              func(string, ...any)
}

// Runtime owns every subsystem and the orchestrator driving them.
type Runtime struct {
	mu sync.Mutex

	Configuration *configuration.Module
	Paras         *paras.Module
	Scheduler     *scheduler.Module
	Inclusion     *inclusion.Module
	SessionInfo   *sessioninfo.Module
	DMP           *dmp.Module
	UMP           *ump.Module
	HRMP          *hrmp.Module

	Initializer *initializer.Orchestrator
}

// New builds the subsystems and the orchestrator.
func New(cfg Config) (*Runtime, error) {
	config, err := configuration.New(cfg.HostConfiguration)
	if err != nil {
		return nil, err
	}
	r := &Runtime{Configuration: config}
	r.Paras = paras.New(config)
	r.Scheduler = scheduler.New(config, r.Paras)
	r.Inclusion = inclusion.New(config, r.Scheduler, r.Paras)
	r.SessionInfo = sessioninfo.New(r.Scheduler)
	r.DMP = dmp.New(config)
	r.UMP = ump.New(config, cfg.UpwardSink)
	r.HRMP = hrmp.New(config, r.Paras)

	orchestrator, err := initializer.New(initializer.Config{
		Store:      cfg.Store,
		Randomness: cfg.Randomness,
		Clock:      cfg.Clock,
		Observer:   cfg.Observer,
		Tracer:     cfg.Tracer,
		Logf:       cfg.Logf,
		Subsystems: initializer.Subsystems{
			Configuration: r.Configuration,
			Paras:         r.Paras,
			Scheduler:     r.Scheduler,
			Inclusion:     r.Inclusion,
			SessionInfo:   r.SessionInfo,
			DMP:           r.DMP,
			UMP:           r.UMP,
			HRMP:          r.HRMP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build initializer: %w", err)
	}
	r.Initializer = orchestrator
	return r, nil
}

// Exclusive runs fn while holding the runtime lock. Block execution and any
// mutation from outside the block pipeline go through here.
func (r *Runtime) Exclusive(fn func() error) error {
	if r == nil {
		return errors.New("runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// ScheduleParaInitialize registers id at the next session change.
func (r *Runtime) ScheduleParaInitialize(id primitives.ParaID, genesis paras.GenesisArgs) error {
	return r.Exclusive(func() error {
		return ScheduleParaInitialize(r.Paras, id, genesis)
	})
}

// ScheduleParaCleanup removes id from the registry and every message queue
// at the next session change.
func (r *Runtime) ScheduleParaCleanup(id primitives.ParaID) error {
	return r.Exclusive(func() error {
		return ScheduleParaCleanup(id, r.Paras, r.DMP, r.UMP, r.HRMP)
	})
}

// ParaRegistrar schedules para registrations.
type ParaRegistrar interface {
	ScheduleParaInitialize(id primitives.ParaID, args paras.GenesisArgs) error
}

// ParaCleaner schedules removal of per-para state.
type ParaCleaner interface {
	ScheduleParaCleanup(id primitives.ParaID) error
}

// ScheduleParaInitialize forwards to the registry.
func ScheduleParaInitialize(registry ParaRegistrar, id primitives.ParaID, genesis paras.GenesisArgs) error {
	if registry == nil {
		return errors.New("para registry is required")
	}
	return registry.ScheduleParaInitialize(id, genesis)
}

// ScheduleParaCleanup forwards to the registry first, then to each message
// queue. A registry rejection leaves the queues untouched.
func ScheduleParaCleanup(id primitives.ParaID, registry ParaCleaner, queues ...ParaCleaner) error {
	if registry == nil {
		return errors.New("para registry is required")
	}
	if err := registry.ScheduleParaCleanup(id); err != nil {
		return err
	}
	for _, q := range queues {
		if err := q.ScheduleParaCleanup(id); err != nil {
			return fmt.Errorf("schedule cleanup of para %d: %w", id, err)
		}
	}
	return nil
}
