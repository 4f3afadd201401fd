// Package dmp holds downward message queues: messages from the relay chain
// waiting to be consumed by a para.
package dmp

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/initializer"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

var (
	// ErrMessageTooLarge indicates a message above MaxDownwardMessageSize.
	ErrMessageTooLarge = errors.New("downward message too large")
	// ErrProcessedTooMany indicates a para acknowledging more messages than queued.
	ErrProcessedTooMany = errors.New("processed more downward messages than queued")
)

// InboundMessage is a queued downward message.
type InboundMessage struct {
	SentAt primitives.BlockNumber
	Msg    []byte
}

// Module owns the per-para downward queues.
type Module struct {
	config   configuration.Reader
	queues   map[primitives.ParaID][]InboundMessage
	outgoing map[primitives.ParaID]struct{}
	now      primitives.BlockNumber
}

// New creates empty queues.
func New(config configuration.Reader) *Module {
	return &Module{
		config:   config,
		queues:   make(map[primitives.ParaID][]InboundMessage),
		outgoing: make(map[primitives.ParaID]struct{}),
	}
}

// QueueDownwardMessage appends msg to para's queue.
func (m *Module) QueueDownwardMessage(para primitives.ParaID, msg []byte) error {
	if limit := m.config.Config().MaxDownwardMessageSize; uint64(len(msg)) > uint64(limit) {
		return fmt.Errorf("%w: %d bytes, max %d", ErrMessageTooLarge, len(msg), limit)
	}
	m.queues[para] = append(m.queues[para], InboundMessage{SentAt: m.now, Msg: slices.Clone(msg)})
	return nil
}

// PruneDownwardQueue removes the first processed messages of para's queue.
func (m *Module) PruneDownwardQueue(para primitives.ParaID, processed int) error {
	queue := m.queues[para]
	if processed < 0 || processed > len(queue) {
		return fmt.Errorf("%w: para %d processed %d of %d", ErrProcessedTooMany, para, processed, len(queue))
	}
	if processed == len(queue) {
		delete(m.queues, para)
		return nil
	}
	m.queues[para] = queue[processed:]
	return nil
}

// Queue returns para's queued messages in order.
func (m *Module) Queue(para primitives.ParaID) []InboundMessage {
	return slices.Clone(m.queues[para])
}

// QueueLens reports the queue length of every para with pending messages.
func (m *Module) QueueLens() map[primitives.ParaID]int {
	out := make(map[primitives.ParaID]int, len(m.queues))
	for id, q := range m.queues {
		out[id] = len(q)
	}
	return out
}

// ScheduleParaCleanup drops para's queue at the next session change.
func (m *Module) ScheduleParaCleanup(para primitives.ParaID) error {
	m.outgoing[para] = struct{}{}
	return nil
}

// Initialize records the current block.
func (m *Module) Initialize(_ context.Context, now primitives.BlockNumber) primitives.Weight {
	m.now = now
	return 0
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
