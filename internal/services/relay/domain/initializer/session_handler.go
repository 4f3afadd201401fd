package initializer

import (
	"context"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// SessionIndexer reports the session index the session manager just entered.
type SessionIndexer interface {
	CurrentIndex() primitives.SessionIndex
}

// SessionHandler plugs the orchestrator into the session manager's handler
// list. The manager does not pass the session index, so it is read back from
// the manager itself.
type SessionHandler struct {
	orchestrator *Orchestrator
	indexer      SessionIndexer
}

// NewSessionHandler adapts o to the session manager contract.
func NewSessionHandler(o *Orchestrator, indexer SessionIndexer) *SessionHandler {
	return &SessionHandler{orchestrator: o, indexer: indexer}
}

// OnGenesisSession is a no-op: genesis state is built by the subsystems
// themselves.
func (h *SessionHandler) OnGenesisSession(context.Context, []primitives.AccountValidator) error {
	return nil
}

// OnNewSession buffers the change for the end of the current block.
func (h *SessionHandler) OnNewSession(ctx context.Context, changed bool, validators, queued []primitives.AccountValidator) error {
	var index primitives.SessionIndex
	if h.indexer != nil {
		index = h.indexer.CurrentIndex()
	}
	return h.orchestrator.OnNewSession(ctx, Announcement{
		Changed:      changed,
		SessionIndex: index,
		Validators:   validators,
		Queued:       queued,
	})
}

// OnDisabled ignores validator disablement.
func (h *SessionHandler) OnDisabled(context.Context, primitives.ValidatorIndex) {}
