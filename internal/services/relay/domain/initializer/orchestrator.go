package initializer

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/randomness"
	"github.com/louisbranch/relaychain/internal/services/relay/storage"
)

const tracerName = "github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"

// Clock reports the number of the block currently being executed.
type Clock interface {
	BlockNumber() primitives.BlockNumber
}

// Observer receives lifecycle milestones, typically to export metrics.
type Observer interface {
	BlockInitialized(now primitives.BlockNumber, weight primitives.Weight)
	SessionChangeBuffered(index primitives.SessionIndex)
	SessionApplied(notification *SessionChangeNotification, superseded int)
}

type noopObserver struct{}

func (noopObserver) BlockInitialized(primitives.BlockNumber, primitives.Weight) {}
func (noopObserver) SessionChangeBuffered(primitives.SessionIndex)              {}
func (noopObserver) SessionApplied(*SessionChangeNotification, int)             {}

// Config wires an Orchestrator.
type Config struct {
	Store      storage.InitializerStore
	Randomness randomness.Source
	// Clock enables detection of announcements made after Finalize within
	// the same block. Without it that precondition is not checked.
	Clock      Clock
	Subsystems Subsystems
	Observer   Observer
	Tracer     trace.Tracer
	Logf       func(string, ...any)
}

// Orchestrator drives the subsystem lifecycle and applies session changes.
// It is not safe for concurrent use: one block runs to completion before
// the next begins.
type Orchestrator struct {
	store      storage.InitializerStore
	randomness randomness.Source
	clock      Clock
	subsystems Subsystems
	observer   Observer
	tracer     trace.Tracer
	logf       func(string, ...any)

	finalized   bool
	finalizedAt primitives.BlockNumber
}

// New validates the wiring table and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if err := cfg.Subsystems.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		store:      cfg.Store,
		randomness: cfg.Randomness,
		clock:      cfg.Clock,
		subsystems: cfg.Subsystems,
		observer:   cfg.Observer,
		tracer:     cfg.Tracer,
		logf:       cfg.Logf,
	}
	if o.observer == nil {
		o.observer = noopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.logf == nil {
		o.logf = log.Printf
	}
	return o, nil
}

// Initialize runs every subsystem's block-start hook in lifecycle order,
// sets the initialized marker and returns the summed cost.
func (o *Orchestrator) Initialize(ctx context.Context, now primitives.BlockNumber) (primitives.Weight, error) {
	ctx, span := o.tracer.Start(ctx, "initializer.Initialize",
		trace.WithAttributes(attribute.Int64("block.number", int64(now))))
	defer span.End()

	if set, err := o.store.HasInitialized(ctx); err != nil {
		return 0, wrapFatal(fmt.Errorf("read initialized marker: %w", err))
	} else if set {
		o.logf("initializer: block %d initialized twice without finalize", now)
	}

	weight := o.subsystems.Configuration.Initialize(ctx, now)
	for _, entry := range o.subsystems.consumers() {
		weight = weight.Add(entry.subsystem.Initialize(ctx, now))
	}

	if err := o.store.SetInitialized(ctx); err != nil {
		return 0, wrapFatal(fmt.Errorf("set initialized marker: %w", err))
	}
	o.finalized = false

	span.SetAttributes(attribute.Int64("block.weight", int64(min(weight, primitives.Weight(1<<63-1)))))
	o.observer.BlockInitialized(now, weight)
	return weight, nil
}

// Finalize runs every subsystem's block-end hook in reverse lifecycle order,
// applies the last buffered session change and clears the initialized marker.
// The buffer is empty when Finalize returns without error.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "initializer.Finalize")
	defer span.End()

	consumers := o.subsystems.consumers()
	for i := len(consumers) - 1; i >= 0; i-- {
		consumers[i].subsystem.Finalize(ctx)
	}
	o.subsystems.Configuration.Finalize(ctx)

	// Only the last change is applied: the earlier ones lasted less than a
	// block and never became a real session boundary.
	changes, err := o.store.TakeSessionChanges(ctx)
	if err != nil {
		return wrapFatal(fmt.Errorf("take buffered session changes: %w", err))
	}
	if len(changes) > 0 {
		last := changes[len(changes)-1]
		o.applyNewSession(ctx, last, len(changes)-1)
	}

	if err := o.store.ClearInitialized(ctx); err != nil {
		return wrapFatal(fmt.Errorf("clear initialized marker: %w", err))
	}
	o.finalized = true
	if o.clock != nil {
		o.finalizedAt = o.clock.BlockNumber()
	}
	return nil
}

// OnNewSession buffers a session change to be applied at the end of the
// block. It does not touch subsystem state.
func (o *Orchestrator) OnNewSession(ctx context.Context, announcement Announcement) error {
	if o.clock != nil && o.finalized && o.clock.BlockNumber() == o.finalizedAt {
		return wrapFatal(fmt.Errorf("%w: session %d in block %d",
			ErrSessionChangeAfterFinalize, announcement.SessionIndex, o.finalizedAt))
	}
	change := announcement.buffered()
	if err := o.store.AppendSessionChange(ctx, change); err != nil {
		return wrapFatal(fmt.Errorf("buffer session change %d: %w", change.SessionIndex, err))
	}
	o.observer.SessionChangeBuffered(change.SessionIndex)
	return nil
}

// HasInitialized reports whether the current block is between Initialize and Finalize.
func (o *Orchestrator) HasInitialized(ctx context.Context) (bool, error) {
	return o.store.HasInitialized(ctx)
}

// BufferedSessionChanges lists the changes waiting for Finalize.
func (o *Orchestrator) BufferedSessionChanges(ctx context.Context) ([]BufferedSessionChange, error) {
	return o.store.SessionChanges(ctx)
}

// applyNewSession is the commit point. prev/new configuration reads bracket
// exactly one call: Configuration's session hook.
func (o *Orchestrator) applyNewSession(ctx context.Context, change BufferedSessionChange, superseded int) {
	ctx, span := o.tracer.Start(ctx, "initializer.applyNewSession",
		trace.WithAttributes(
			attribute.Int64("session.index", int64(change.SessionIndex)),
			attribute.Int("session.validators", len(change.Validators)),
			attribute.Int("session.superseded", superseded),
		))
	defer span.End()

	prevConfig := o.subsystems.Configuration.Config()
	randomSeed := randomness.Seed32(o.randomness, []byte(RandomSeedSubject))

	o.subsystems.Configuration.OnNewSession(ctx, change.Validators, change.Queued)

	newConfig := o.subsystems.Configuration.Config()

	notification := &SessionChangeNotification{
		Validators:   change.Validators,
		Queued:       change.Queued,
		PrevConfig:   prevConfig,
		NewConfig:    newConfig,
		RandomSeed:   randomSeed,
		SessionIndex: change.SessionIndex,
	}
	for _, entry := range o.subsystems.consumers() {
		entry.subsystem.OnNewSession(ctx, notification)
	}

	if superseded > 0 {
		o.logf("initializer: applied session %d, discarded %d superseded change(s)", change.SessionIndex, superseded)
	} else {
		o.logf("initializer: applied session %d with %d validators", change.SessionIndex, len(change.Validators))
	}
	o.observer.SessionApplied(notification, superseded)
}
