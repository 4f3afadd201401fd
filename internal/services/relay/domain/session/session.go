// Package session rotates validator sets on fixed session boundaries and
// announces each rotation to registered handlers.
//
// The manager keeps two sets: the active validators and the queued set that
// becomes active at the next rotation. Rotations happen at block start, before
// the runtime initializes the block.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

var (
	// ErrInvalidSessionLength indicates a zero session length.
	ErrInvalidSessionLength = errors.New("session length must be positive")
	// ErrValidatorSourceRequired indicates a missing validator source.
	ErrValidatorSourceRequired = errors.New("validator source is required")
	// ErrUnknownValidator indicates a validator index outside the active set.
	ErrUnknownValidator = errors.New("unknown validator index")
)

// Handler reacts to session rotations.
type Handler interface {
	OnGenesisSession(ctx context.Context, validators []primitives.AccountValidator) error
	OnNewSession(ctx context.Context, changed bool, validators, queued []primitives.AccountValidator) error
	OnDisabled(ctx context.Context, index primitives.ValidatorIndex)
}

// ValidatorSource chooses the validator set for a future session.
type ValidatorSource interface {
	NextValidators(ctx context.Context, session primitives.SessionIndex) []primitives.AccountValidator
}

// StaticValidators always returns the same set.
type StaticValidators []primitives.AccountValidator

// NextValidators returns the static set.
func (s StaticValidators) NextValidators(context.Context, primitives.SessionIndex) []primitives.AccountValidator {
	return slices.Clone(s)
}

// RotatingValidators slides a window of Size validators over Pool, one
// position per session.
type RotatingValidators struct {
	Pool []primitives.AccountValidator
	Size int
}

// NextValidators returns the window for session.
func (r RotatingValidators) NextValidators(_ context.Context, session primitives.SessionIndex) []primitives.AccountValidator {
	if len(r.Pool) == 0 {
		return nil
	}
	size := r.Size
	if size <= 0 || size > len(r.Pool) {
		size = len(r.Pool)
	}
	out := make([]primitives.AccountValidator, 0, size)
	start := int(session) % len(r.Pool)
	for i := range size {
		out = append(out, r.Pool[(start+i)%len(r.Pool)])
	}
	return out
}

// Config configures a Manager.
type Config struct {
	SessionLength primitives.BlockNumber
	Source        ValidatorSource
	Genesis       []primitives.AccountValidator
}

// Manager owns the active and queued validator sets.
type Manager struct {
	sessionLength primitives.BlockNumber
	source        ValidatorSource
	handlers      []Handler

	current       primitives.SessionIndex
	validators    []primitives.AccountValidator
	queued        []primitives.AccountValidator
	queuedChanged bool
	disabled      map[primitives.ValidatorIndex]struct{}
}

// New creates a manager in session 0 with the genesis validators active.
func New(cfg Config) (*Manager, error) {
	if cfg.SessionLength == 0 {
		return nil, ErrInvalidSessionLength
	}
	if cfg.Source == nil {
		return nil, ErrValidatorSourceRequired
	}
	return &Manager{
		sessionLength: cfg.SessionLength,
		source:        cfg.Source,
		validators:    slices.Clone(cfg.Genesis),
		disabled:      make(map[primitives.ValidatorIndex]struct{}),
	}, nil
}

// AddHandler registers h. Handlers run in registration order.
func (m *Manager) AddHandler(h Handler) {
	m.handlers = append(m.handlers, h)
}

// Genesis queues the set for session 1 and notifies handlers of the
// genesis validators.
func (m *Manager) Genesis(ctx context.Context) error {
	m.queued = m.source.NextValidators(ctx, 1)
	m.queuedChanged = !slices.Equal(m.queued, m.validators)
	for _, h := range m.handlers {
		if err := h.OnGenesisSession(ctx, slices.Clone(m.validators)); err != nil {
			return fmt.Errorf("genesis session: %w", err)
		}
	}
	return nil
}

// OnInitialize rotates the session when now is a session boundary.
func (m *Manager) OnInitialize(ctx context.Context, now primitives.BlockNumber) (bool, error) {
	if now == 0 || now%m.sessionLength != 0 {
		return false, nil
	}
	return true, m.Rotate(ctx)
}

// Rotate promotes the queued set, queues the next one and notifies handlers.
func (m *Manager) Rotate(ctx context.Context) error {
	changed := m.queuedChanged
	m.current++
	m.validators = m.queued
	clear(m.disabled)

	next := m.source.NextValidators(ctx, m.current+1)
	m.queuedChanged = !slices.Equal(next, m.validators)
	m.queued = next

	for _, h := range m.handlers {
		if err := h.OnNewSession(ctx, changed, slices.Clone(m.validators), slices.Clone(m.queued)); err != nil {
			return fmt.Errorf("new session %d: %w", m.current, err)
		}
	}
	return nil
}

// Disable marks an active validator as disabled for the rest of the session.
func (m *Manager) Disable(ctx context.Context, index primitives.ValidatorIndex) error {
	if int(index) >= len(m.validators) {
		return fmt.Errorf("%w: %d", ErrUnknownValidator, index)
	}
	if _, ok := m.disabled[index]; ok {
		return nil
	}
	m.disabled[index] = struct{}{}
	for _, h := range m.handlers {
		h.OnDisabled(ctx, index)
	}
	return nil
}

// CurrentIndex returns the active session index.
func (m *Manager) CurrentIndex() primitives.SessionIndex {
	return m.current
}

// Validators returns the active set.
func (m *Manager) Validators() []primitives.AccountValidator {
	return slices.Clone(m.validators)
}

// Queued returns the set that becomes active at the next rotation.
func (m *Manager) Queued() []primitives.AccountValidator {
	return slices.Clone(m.queued)
}

// SessionLength returns the number of blocks per session.
func (m *Manager) SessionLength() primitives.BlockNumber {
	return m.sessionLength
}
