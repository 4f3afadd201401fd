// Package hrmp manages horizontal message channels between paras.
//
// A channel is opened in two steps: the sender requests it and the recipient
// accepts. Accepted requests and close requests both take effect at the next
// session change, as does the removal of channels touching an outgoing para.
package hrmp

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
	ErrSelfChannel        = errors.New("channel sender and recipient are the same para")
	ErrInvalidPara        = errors.New("para is not registered")
	ErrChannelExists      = errors.New("channel already exists")
	ErrRequestExists      = errors.New("open request already exists")
	ErrNoRequest          = errors.New("no open request for channel")
	ErrAlreadyConfirmed   = errors.New("open request already confirmed")
	ErrNoChannel          = errors.New("channel does not exist")
	ErrCapacityExceeded   = errors.New("channel capacity exceeds configured maximum")
	ErrMessageSizeInvalid = errors.New("channel message size exceeds configured maximum")
	ErrTooManyChannels    = errors.New("too many outbound channels")
	ErrChannelFull        = errors.New("channel is full")
	ErrMessageTooLarge    = errors.New("message exceeds channel maximum")
)

// ParaChecker reports whether a para may take part in a channel.
type ParaChecker interface {
	IsValid(id primitives.ParaID) bool
}

// ChannelID identifies a directed channel.
type ChannelID struct {
	Sender    primitives.ParaID
	Recipient primitives.ParaID
}

func (id ChannelID) String() string {
	return fmt.Sprintf("%d->%d", id.Sender, id.Recipient)
}

func (id ChannelID) touches(para primitives.ParaID) bool {
	return id.Sender == para || id.Recipient == para
}

// OpenRequest is a channel requested by its sender.
type OpenRequest struct {
	ID             ChannelID
	MaxCapacity    uint32
	MaxMessageSize uint32
	Confirmed      bool
}

// Channel is an open channel and its queued messages.
type Channel struct {
	ID             ChannelID
	MaxCapacity    uint32
	MaxMessageSize uint32
	Messages       [][]byte
	TotalSize      uint64
}

// Module owns channel state.
type Module struct {
	config   configuration.Reader
	paras    ParaChecker
	requests map[ChannelID]*OpenRequest
	channels map[ChannelID]*Channel
	closing  map[ChannelID]struct{}
	outgoing map[primitives.ParaID]struct{}
}

// New creates a module with no channels.
func New(config configuration.Reader, paras ParaChecker) *Module {
	return &Module{
		config:   config,
		paras:    paras,
		requests: make(map[ChannelID]*OpenRequest),
		channels: make(map[ChannelID]*Channel),
		closing:  make(map[ChannelID]struct{}),
		outgoing: make(map[primitives.ParaID]struct{}),
	}
}

// InitOpenChannel records sender's request to open a channel to recipient.
func (m *Module) InitOpenChannel(sender, recipient primitives.ParaID, capacity, maxMessageSize uint32) error {
	id := ChannelID{Sender: sender, Recipient: recipient}
	if sender == recipient {
		return fmt.Errorf("%w: %s", ErrSelfChannel, id)
	}
	if !m.paras.IsValid(sender) {
		return fmt.Errorf("%w: %d", ErrInvalidPara, sender)
	}
	if !m.paras.IsValid(recipient) {
		return fmt.Errorf("%w: %d", ErrInvalidPara, recipient)
	}
	cfg := m.config.Config()
	if capacity == 0 || capacity > cfg.HrmpChannelMaxCapacity {
		return fmt.Errorf("%w: %d, max %d", ErrCapacityExceeded, capacity, cfg.HrmpChannelMaxCapacity)
	}
	if maxMessageSize == 0 || maxMessageSize > cfg.HrmpChannelMaxMessageSize {
		return fmt.Errorf("%w: %d, max %d", ErrMessageSizeInvalid, maxMessageSize, cfg.HrmpChannelMaxMessageSize)
	}
	if _, ok := m.channels[id]; ok {
		return fmt.Errorf("%w: %s", ErrChannelExists, id)
	}
	if _, ok := m.requests[id]; ok {
		return fmt.Errorf("%w: %s", ErrRequestExists, id)
	}
	if m.outboundCount(sender) >= int(cfg.HrmpMaxParachainOutboundChannels) {
		return fmt.Errorf("%w: para %d, max %d", ErrTooManyChannels, sender, cfg.HrmpMaxParachainOutboundChannels)
	}
	m.requests[id] = &OpenRequest{ID: id, MaxCapacity: capacity, MaxMessageSize: maxMessageSize}
	return nil
}

// AcceptOpenChannel confirms the request from sender to recipient.
func (m *Module) AcceptOpenChannel(recipient, sender primitives.ParaID) error {
	id := ChannelID{Sender: sender, Recipient: recipient}
	req, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRequest, id)
	}
	if req.Confirmed {
		return fmt.Errorf("%w: %s", ErrAlreadyConfirmed, id)
	}
	req.Confirmed = true
	return nil
}

// CloseChannel schedules id for closing at the next session change.
func (m *Module) CloseChannel(id ChannelID) error {
	if _, ok := m.channels[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNoChannel, id)
	}
	m.closing[id] = struct{}{}
	return nil
}

// Send queues msg on an open channel.
func (m *Module) Send(id ChannelID, msg []byte) error {
	ch, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChannel, id)
	}
	if uint64(len(msg)) > uint64(ch.MaxMessageSize) {
		return fmt.Errorf("%w: %d bytes, max %d", ErrMessageTooLarge, len(msg), ch.MaxMessageSize)
	}
	if len(ch.Messages) >= int(ch.MaxCapacity) {
		return fmt.Errorf("%w: %s", ErrChannelFull, id)
	}
	ch.Messages = append(ch.Messages, slices.Clone(msg))
	ch.TotalSize += uint64(len(msg))
	return nil
}

// Receive drains every message queued on id.
func (m *Module) Receive(id ChannelID) ([][]byte, error) {
	ch, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, id)
	}
	msgs := ch.Messages
	ch.Messages = nil
	ch.TotalSize = 0
	return msgs, nil
}

// Channels lists open channels ordered by sender then recipient.
func (m *Module) Channels() []Channel {
	ids := slices.SortedFunc(maps.Keys(m.channels), compareIDs)
	out := make([]Channel, 0, len(ids))
	for _, id := range ids {
		ch := *m.channels[id]
		ch.Messages = slices.Clone(ch.Messages)
		out = append(out, ch)
	}
	return out
}

// Requests lists pending open requests ordered by sender then recipient.
func (m *Module) Requests() []OpenRequest {
	ids := slices.SortedFunc(maps.Keys(m.requests), compareIDs)
	out := make([]OpenRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.requests[id])
	}
	return out
}

// ScheduleParaCleanup removes every channel and request touching para at the
// next session change.
func (m *Module) ScheduleParaCleanup(para primitives.ParaID) error {
	m.outgoing[para] = struct{}{}
	return nil
}

// Initialize performs block-start bookkeeping.
func (m *Module) Initialize(context.Context, primitives.BlockNumber) primitives.Weight {
	return 0
}

// Finalize performs block-end bookkeeping.
func (m *Module) Finalize(context.Context) {}

// OnNewSession applies para cleanup, close requests and confirmed open
// requests, in that order.
func (m *Module) OnNewSession(context.Context, *initializer.SessionChangeNotification) {
	for para := range m.outgoing {
		for id := range m.channels {
			if id.touches(para) {
				delete(m.channels, id)
			}
		}
		for id := range m.requests {
			if id.touches(para) {
				delete(m.requests, id)
			}
		}
	}
	clear(m.outgoing)

	for id := range m.closing {
		delete(m.channels, id)
	}
	clear(m.closing)

	for id, req := range m.requests {
		if !req.Confirmed {
			continue
		}
		m.channels[id] = &Channel{ID: id, MaxCapacity: req.MaxCapacity, MaxMessageSize: req.MaxMessageSize}
		delete(m.requests, id)
	}
}

func (m *Module) outboundCount(sender primitives.ParaID) int {
	n := 0
	for id := range m.channels {
		if id.Sender == sender {
			n++
		}
	}
	for id := range m.requests {
		if id.Sender == sender {
			n++
		}
	}
	return n
}

func compareIDs(a, b ChannelID) int {
	if a.Sender != b.Sender {
		if a.Sender < b.Sender {
			return -1
		}
		return 1
	}
	if a.Recipient < b.Recipient {
		return -1
	}
	if a.Recipient > b.Recipient {
		return 1
	}
	return 0
}
