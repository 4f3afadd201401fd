package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/session"
)

// CallContext is the state a call may touch while it runs inside a block.
type CallContext struct {
	Number   primitives.BlockNumber
	Runtime  *parachains.Runtime
	Sessions *session.Manager
}

// Call mutates runtime state inside a block, after Initialize and before
// Finalize. It runs with the runtime lock held, so it must use the
// subsystems directly and never Runtime.Exclusive.
type Call func(ctx context.Context, cc CallContext) error

type pendingCall struct {
	name string
	call Call
	done chan callResult
}

type callResult struct {
	block primitives.BlockNumber
	err   error
}

// Submit queues call for the next block and waits until that block is
// sealed. It returns the including block and the call's own error; a
// rejected call does not fail the block. If ctx ends before a block picks
// the call up, the call is withdrawn and never runs.
func (c *Chain) Submit(ctx context.Context, name string, call Call) (primitives.BlockNumber, error) {
	if call == nil {
		return 0, errors.New("call is required")
	}
	p := &pendingCall{name: name, call: call, done: make(chan callResult, 1)}

	c.callsMu.Lock()
	if c.callsClosed != nil {
		err := c.callsClosed
		c.callsMu.Unlock()
		return 0, err
	}
	c.calls = append(c.calls, p)
	c.callsMu.Unlock()

	select {
	case res := <-p.done:
		return res.block, res.err
	case <-ctx.Done():
	}
	if c.withdraw(p) {
		return 0, fmt.Errorf("call %s withdrawn: %w", name, ctx.Err())
	}
	// Already in a block: the result arrives once the block ends.
	res := <-p.done
	return res.block, res.err
}

// PendingCalls reports how many calls wait for the next block.
func (c *Chain) PendingCalls() int {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()
	return len(c.calls)
}

func (c *Chain) withdraw(p *pendingCall) bool {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()
	idx := slices.Index(c.calls, p)
	if idx < 0 {
		return false
	}
	c.calls = slices.Delete(c.calls, idx, idx+1)
	return true
}

func (c *Chain) takeCalls() []*pendingCall {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()
	calls := c.calls
	c.calls = nil
	return calls
}

// closeCalls rejects every queued call and any later submission.
func (c *Chain) closeCalls(err error) {
	c.callsMu.Lock()
	calls := c.calls
	c.calls = nil
	c.callsClosed = err
	c.callsMu.Unlock()
	for _, p := range calls {
		p.done <- callResult{err: err}
	}
}

// applyCalls runs calls in submission order and returns their errors.
func (c *Chain) applyCalls(ctx context.Context, number primitives.BlockNumber, calls []*pendingCall) []error {
	cc := CallContext{Number: number, Runtime: c.runtime, Sessions: c.sessions}
	errs := make([]error, len(calls))
	for i, p := range calls {
		if err := p.call(ctx, cc); err != nil {
			errs[i] = err
			c.logf("block %d: call %s rejected: %v", number, p.name, err)
		}
	}
	return errs
}

func deliverCalls(calls []*pendingCall, number primitives.BlockNumber, errs []error, blockErr error) {
	for i, p := range calls {
		if blockErr != nil {
			p.done <- callResult{err: blockErr}
			continue
		}
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		p.done <- callResult{block: number, err: err}
	}
}
