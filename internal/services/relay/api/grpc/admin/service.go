// Package admin exposes the relay runtime's mutating operations over gRPC.
//
// Every method queues a call that runs inside the next block, between
// Initialize and Finalize, and returns once that block is sealed.
package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/relaychain/internal/platform/errors"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/chain"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/hrmp"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
)

// CallSubmitter runs calls inside blocks.
type CallSubmitter interface {
	Submit(ctx context.Context, name string, call chain.Call) (primitives.BlockNumber, error)
}

// Service implements AdminServer.
type Service struct {
	UnimplementedAdminServer
	chain CallSubmitter
}

// NewService creates an admin service that submits to c.
func NewService(c CallSubmitter) *Service {
	return &Service{chain: c}
}

// UpdateConfiguration stages the given fields on top of the pending
// configuration. Keys are the configuration's json names.
func (s *Service) UpdateConfiguration(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()
	check := configuration.Default()
	if err := check.Patch(fields); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeCallInvalid, "decode configuration patch", err)
	}
	return s.submit(ctx, MethodUpdateConfiguration, func(_ context.Context, cc chain.CallContext) error {
		var patchErr error
		err := cc.Runtime.Configuration.Update(func(c *configuration.HostConfiguration) {
			patchErr = c.Patch(fields)
		})
		if patchErr != nil {
			return patchErr
		}
		return err
	})
}

// ScheduleParaInitialize registers a para at the next session change.
func (s *Service) ScheduleParaInitialize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	head, err := bytesField(in, "head", false)
	if err != nil {
		return nil, err
	}
	code, err := bytesField(in, "code", true)
	if err != nil {
		return nil, err
	}
	parachain, err := boolField(in, "parachain")
	if err != nil {
		return nil, err
	}
	genesis := paras.GenesisArgs{Head: head, Code: code, Parachain: parachain}
	return s.submit(ctx, MethodScheduleParaInitialize, func(_ context.Context, cc chain.CallContext) error {
		return parachains.ScheduleParaInitialize(cc.Runtime.Paras, id, genesis)
	})
}

// ScheduleParaCleanup removes a para and its queues at the next session change.
func (s *Service) ScheduleParaCleanup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodScheduleParaCleanup, func(_ context.Context, cc chain.CallContext) error {
		r := cc.Runtime
		return parachains.ScheduleParaCleanup(id, r.Paras, r.DMP, r.UMP, r.HRMP)
	})
}

// AddParathreadClaim queues a parathread for a core in a later block.
func (s *Service) AddParathreadClaim(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodAddParathreadClaim, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.Scheduler.AddParathreadClaim(id)
	})
}

// BackCandidate records a backed candidate for a para scheduled in the
// including block.
func (s *Service) BackCandidate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	head, err := bytesField(in, "head", true)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodBackCandidate, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.Inclusion.BackCandidate(id, head)
	})
}

// NoteAvailable marks a para's pending candidate as available.
func (s *Service) NoteAvailable(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodNoteAvailable, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.Inclusion.NoteAvailable(id)
	})
}

// QueueDownwardMessage appends a message to a para's downward queue.
func (s *Service) QueueDownwardMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	msg, err := bytesField(in, "message", true)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodQueueDownwardMessage, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.DMP.QueueDownwardMessage(id, msg)
	})
}

// EnqueueUpwardMessage appends a message to a para's upward queue.
func (s *Service) EnqueueUpwardMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := paraField(in, "para")
	if err != nil {
		return nil, err
	}
	msg, err := bytesField(in, "message", true)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodEnqueueUpwardMessage, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.UMP.EnqueueUpwardMessages(id, msg)
	})
}

// OpenChannel requests an HRMP channel from sender to recipient.
func (s *Service) OpenChannel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelField(in)
	if err != nil {
		return nil, err
	}
	capacity, err := uint32Field(in, "capacity", true)
	if err != nil {
		return nil, err
	}
	maxSize, err := uint32Field(in, "max_message_size", true)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodOpenChannel, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.HRMP.InitOpenChannel(id.Sender, id.Recipient, capacity, maxSize)
	})
}

// AcceptChannel accepts a pending open request on behalf of the recipient.
func (s *Service) AcceptChannel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelField(in)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodAcceptChannel, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.HRMP.AcceptOpenChannel(id.Recipient, id.Sender)
	})
}

// CloseChannel closes an open HRMP channel.
func (s *Service) CloseChannel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := channelField(in)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodCloseChannel, func(_ context.Context, cc chain.CallContext) error {
		return cc.Runtime.HRMP.CloseChannel(id)
	})
}

// DisableValidator disables an active validator for the rest of the session.
func (s *Service) DisableValidator(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	index, err := uint32Field(in, "validator", true)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, MethodDisableValidator, func(ctx context.Context, cc chain.CallContext) error {
		return cc.Sessions.Disable(ctx, primitives.ValidatorIndex(index))
	})
}

func (s *Service) submit(ctx context.Context, name string, call chain.Call) (*structpb.Struct, error) {
	if s == nil || s.chain == nil {
		return nil, apperrors.New(apperrors.CodeRuntimeUnavailable, "chain is not configured")
	}
	block, err := s.chain.Submit(ctx, name, call)
	if err != nil {
		return nil, submitError(name, err)
	}
	out, err := structpb.NewStruct(map[string]any{"block": uint32(block)})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode "+name, err)
	}
	return out, nil
}

func submitError(name string, err error) error {
	switch {
	case errors.Is(err, chain.ErrHalted):
		return apperrors.Wrap(apperrors.CodeRuntimeHalted, name, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.CodeCallWithdrawn, name, err)
	case errors.Is(err, configuration.ErrInvalidConfiguration):
		return apperrors.Wrap(apperrors.CodeCallInvalid, name, err)
	default:
		return apperrors.Wrap(apperrors.CodeCallRejected, name, err)
	}
}

func invalidField(key, format string, args ...any) error {
	return apperrors.WithMetadata(apperrors.CodeCallInvalid,
		fmt.Sprintf("field %s: %s", key, fmt.Sprintf(format, args...)),
		map[string]string{"field": key})
}

func uint32Field(in *structpb.Struct, key string, required bool) (uint32, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		if required {
			return 0, invalidField(key, "is required")
		}
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, invalidField(key, "must be a number")
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, invalidField(key, "%v is not a uint32", f)
	}
	return uint32(f), nil
}

func paraField(in *structpb.Struct, key string) (primitives.ParaID, error) {
	n, err := uint32Field(in, key, true)
	return primitives.ParaID(n), err
}

func channelField(in *structpb.Struct) (hrmp.ChannelID, error) {
	sender, err := paraField(in, "sender")
	if err != nil {
		return hrmp.ChannelID{}, err
	}
	recipient, err := paraField(in, "recipient")
	if err != nil {
		return hrmp.ChannelID{}, err
	}
	return hrmp.ChannelID{Sender: sender, Recipient: recipient}, nil
}

// bytesField decodes a hex string with an optional 0x prefix.
func bytesField(in *structpb.Struct, key string, required bool) ([]byte, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		if required {
			return nil, invalidField(key, "is required")
		}
		return nil, nil
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, invalidField(key, "must be a hex string")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(str.StringValue, "0x"))
	if err != nil {
		return nil, invalidField(key, "%v", err)
	}
	return raw, nil
}

func boolField(in *structpb.Struct, key string) (bool, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return false, nil
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, invalidField(key, "must be a boolean")
	}
	return b.BoolValue, nil
}
