// Package storage defines the persistence contract for initializer state: the
// per-block initialized marker and the session-change buffer.
//
// Both items are transient. In the common case the marker is absent and the
// buffer is empty outside block execution, so nothing remains stored between
// blocks.
package storage

import (
	"context"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// BufferedSessionChange is the part of a session change known when it is
// announced. The configuration is deliberately absent: it is read when the
// change is applied.
type BufferedSessionChange struct {
	Validators   []primitives.ValidatorID
	Queued       []primitives.ValidatorID
	SessionIndex primitives.SessionIndex
}

// Clone returns a copy that shares no slices with c.
func (c BufferedSessionChange) Clone() BufferedSessionChange {
	return BufferedSessionChange{
		Validators:   primitives.CloneValidators(c.Validators),
		Queued:       primitives.CloneValidators(c.Queued),
		SessionIndex: c.SessionIndex,
	}
}

// InitializerStore persists the initializer marker and buffered session changes.
//
// SetInitialized/ClearInitialized model a presence marker: after a clear the
// marker reads absent rather than false.
type InitializerStore interface {
	HasInitialized(ctx context.Context) (bool, error)
	SetInitialized(ctx context.Context) error
	ClearInitialized(ctx context.Context) error

	AppendSessionChange(ctx context.Context, change BufferedSessionChange) error
	// SessionChanges lists buffered changes in announcement order.
	SessionChanges(ctx context.Context) ([]BufferedSessionChange, error)
	// TakeSessionChanges lists buffered changes in announcement order and
	// empties the buffer in the same step.
	TakeSessionChanges(ctx context.Context) ([]BufferedSessionChange, error)
}
