// Package inspector exposes a read-only gRPC view of the relay runtime.
package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/louisbranch/relaychain/internal/platform/errors"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/chain"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/sessioninfo"
)

// RuntimeReader takes consistent copies of runtime state.
type RuntimeReader interface {
	Snapshot(ctx context.Context) (parachains.Snapshot, error)
	LookupSessionInfo(index primitives.SessionIndex) (sessioninfo.Info, bool)
}

// ChainReader reports the last executed block.
type ChainReader interface {
	Last() chain.Block
	Halted() error
	PendingCalls() int
}

// Service implements InspectorServer.
type Service struct {
	UnimplementedInspectorServer
	runtime RuntimeReader
	chain   ChainReader
}

// NewService creates an inspector over a runtime and its block driver.
func NewService(runtime RuntimeReader, chain ChainReader) *Service {
	return &Service{runtime: runtime, chain: chain}
}

// Status summarizes the last block and the runtime state after it.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.runtime == nil || s.chain == nil {
		return nil, apperrors.New(apperrors.CodeRuntimeUnavailable, "runtime is not configured")
	}
	snap, err := s.runtime.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRuntimeSnapshot, "snapshot runtime", err)
	}
	block := s.chain.Last()

	parasOut := make([]any, 0, len(snap.Paras))
	for _, p := range snap.Paras {
		parasOut = append(parasOut, map[string]any{
			"id":         uint32(p.ID),
			"lifecycle":  string(p.Lifecycle),
			"code_hash":  p.CodeHash.B58String(),
			"updated_at": uint32(p.UpdatedAt),
		})
	}
	scheduled := make([]any, 0, len(snap.Scheduled))
	for _, a := range snap.Scheduled {
		scheduled = append(scheduled, map[string]any{
			"core":  uint32(a.Core),
			"para":  uint32(a.Para),
			"group": uint32(a.Group),
		})
	}
	sessions := make([]any, 0, len(snap.StoredSessions))
	for _, index := range snap.StoredSessions {
		sessions = append(sessions, uint32(index))
	}
	channels := make([]any, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		channels = append(channels, ch.ID.String())
	}

	out := map[string]any{
		"block_number":          uint32(block.Number),
		"block_hash":            block.Hash.String(),
		"parent_hash":           block.ParentHash.String(),
		"block_weight":          uint64(block.Weight),
		"session_index":         uint32(block.Session),
		"validators":            block.Validators,
		"initialized":           snap.Initialized,
		"buffered_changes":      snap.BufferedChanges,
		"pending_configuration": snap.PendingConfig != nil,
		"paras":                 parasOut,
		"availability_cores":    snap.AvailabilityCores,
		"validator_groups":      len(snap.ValidatorGroups),
		"session_start_block":   uint32(snap.SessionStartBlock),
		"scheduled":             scheduled,
		"pending_availability":  snap.PendingAvailability,
		"stored_sessions":       sessions,
		"upward_dispatched":     snap.UpwardDispatched,
		"hrmp_channels":         channels,
		"pending_calls":         s.chain.PendingCalls(),
	}
	if err := s.chain.Halted(); err != nil {
		out["halted"] = err.Error()
	}
	result, err := structpb.NewStruct(out)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode status", err)
	}
	return result, nil
}

// HostConfiguration returns the active configuration and, when staged, the
// configuration taking effect at the next session.
func (s *Service) HostConfiguration(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s == nil || s.runtime == nil {
		return nil, apperrors.New(apperrors.CodeRuntimeUnavailable, "runtime is not configured")
	}
	snap, err := s.runtime.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRuntimeSnapshot, "snapshot runtime", err)
	}
	active, err := asMap(snap.Config)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode configuration", err)
	}
	out := map[string]any{"active": active}
	if snap.PendingConfig != nil {
		pending, err := asMap(*snap.PendingConfig)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode pending configuration", err)
		}
		out["pending"] = pending
	}
	result, err := structpb.NewStruct(out)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode configuration", err)
	}
	return result, nil
}

// SessionInfo returns the stored record of one session. Sessions older than
// the dispute window report SESSION_PRUNED, later ones SESSION_NOT_STORED.
func (s *Service) SessionInfo(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	if in == nil {
		return nil, apperrors.New(apperrors.CodeRequestMissing, "session index is required")
	}
	if s == nil || s.runtime == nil {
		return nil, apperrors.New(apperrors.CodeRuntimeUnavailable, "runtime is not configured")
	}
	index := primitives.SessionIndex(in.GetValue())
	info, ok := s.runtime.LookupSessionInfo(index)
	if !ok {
		snap, err := s.runtime.Snapshot(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRuntimeSnapshot, "snapshot runtime", err)
		}
		metadata := map[string]string{
			"session":  strconv.FormatUint(uint64(index), 10),
			"earliest": strconv.FormatUint(uint64(snap.EarliestStoredSession), 10),
		}
		if len(snap.StoredSessions) > 0 && index < snap.EarliestStoredSession {
			return nil, apperrors.WithMetadata(apperrors.CodeSessionPruned, fmt.Sprintf("session %d is pruned", index), metadata)
		}
		return nil, apperrors.WithMetadata(apperrors.CodeSessionNotStored, fmt.Sprintf("session %d is not stored", index), metadata)
	}
	fields, err := asMap(info)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode session info", err)
	}
	fields["session_index"] = in.GetValue()
	result, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEncodeResponse, "encode session info", err)
	}
	return result, nil
}

func asMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}
