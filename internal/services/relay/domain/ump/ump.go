// Package ump holds upward message queues: messages a para sends to the
// relay chain. Queues are bounded by the host configuration and drained at
// block start, one message per para per block.
package ump

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

var (
	// ErrMessageTooLarge indicates a message above MaxUpwardMessageSize.
	ErrMessageTooLarge = errors.New("upward message too large")
	// ErrQueueFull indicates a queue that would exceed its count or size limit.
	ErrQueueFull = errors.New("upward queue full")
)

// Sink receives dispatched upward messages.
type Sink interface {
	Dispatch(para primitives.ParaID, msg []byte)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(para primitives.ParaID, msg []byte)

// Dispatch calls fn.
func (fn SinkFunc) Dispatch(para primitives.ParaID, msg []byte) { fn(para, msg) }

type queue struct {
	msgs [][]byte
	size uint64
}

// Module owns the per-para upward queues.
type Module struct {
	config     configuration.Reader
	sink       Sink
	queues     map[primitives.ParaID]*queue
	outgoing   map[primitives.ParaID]struct{}
	dispatched uint64
}

// New creates empty queues. A nil sink discards dispatched messages.
func New(config configuration.Reader, sink Sink) *Module {
	if sink == nil {
		sink = SinkFunc(func(primitives.ParaID, []byte) {})
	}
	return &Module{
		config:   config,
		sink:     sink,
		queues:   make(map[primitives.ParaID]*queue),
		outgoing: make(map[primitives.ParaID]struct{}),
	}
}

// EnqueueUpwardMessages appends msgs to para's queue. Either every message is
// queued or none is.
func (m *Module) EnqueueUpwardMessages(para primitives.ParaID, msgs ...[]byte) error {
	cfg := m.config.Config()
	q := m.queues[para]
	if q == nil {
		q = &queue{}
	}
	count, size := len(q.msgs), q.size
	for _, msg := range msgs {
		if uint64(len(msg)) > uint64(cfg.MaxUpwardMessageSize) {
			return fmt.Errorf("%w: %d bytes, max %d", ErrMessageTooLarge, len(msg), cfg.MaxUpwardMessageSize)
		}
		count++
		size += uint64(len(msg))
	}
	if count > int(cfg.MaxUpwardQueueCount) {
		return fmt.Errorf("%w: para %d would hold %d messages, max %d", ErrQueueFull, para, count, cfg.MaxUpwardQueueCount)
	}
	if size > uint64(cfg.MaxUpwardQueueSize) {
		return fmt.Errorf("%w: para %d would hold %d bytes, max %d", ErrQueueFull, para, size, cfg.MaxUpwardQueueSize)
	}
	for _, msg := range msgs {
		q.msgs = append(q.msgs, slices.Clone(msg))
	}
	q.size = size
	m.queues[para] = q
	return nil
}

// QueueLen reports the number and total size of para's queued messages.
func (m *Module) QueueLen(para primitives.ParaID) (int, uint64) {
	q := m.queues[para]
	if q == nil {
		return 0, 0
	}
	return len(q.msgs), q.size
}

// Dispatched reports how many messages have been handed to the sink.
func (m *Module) Dispatched() uint64 {
	return m.dispatched
}

// ScheduleParaCleanup drops para's queue at the next session change.
func (m *Module) ScheduleParaCleanup(para primitives.ParaID) error {
	m.outgoing[para] = struct{}{}
	return nil
}

// Initialize dispatches the head of every queue in ascending para order.
func (m *Module) Initialize(context.Context, primitives.BlockNumber) primitives.Weight {
	var weight primitives.Weight
	for _, id := range slices.Sorted(maps.Keys(m.queues)) {
		q := m.queues[id]
		msg := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.size -= uint64(len(msg))
		if len(q.msgs) == 0 {
			delete(m.queues, id)
		}
		m.sink.Dispatch(id, msg)
		m.dispatched++
		weight++
	}
	return weight
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession removes the queues of outgoing paras.
func (m *Module) OnNewSession(context.Context, *initializer.SessionChangeNotification) {
	for id := range m.outgoing {
		delete(m.queues, id)
	}
	clear(m.outgoing)
}
