package admin

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/relaychain/internal/platform/errors"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/chain"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/configuration"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/paras"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/randomness"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/session"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/system"
	"github.com/louisbranch/relaychain/internal/services/relay/storage/memory"
)

// newRelay builds a chain past block 1, where the genesis session registers
// para 2000. Sessions are long enough that staged configuration stays pending.
func newRelay(t *testing.T) (*parachains.Runtime, *chain.Chain) {
	t.Helper()
	validators := make([]primitives.AccountValidator, 3)
	for i := range validators {
		validators[i].ID[0] = byte(i + 1)
		validators[i].Account = primitives.AccountID(validators[i].ID.String())
	}
	sys := system.New(primitives.Hash{})
	beacon := randomness.NewBeacon([32]byte{9})
	rt, err := parachains.New(parachains.Config{
		HostConfiguration: configuration.Default(),
		Store:             memory.New(),
		Randomness:        beacon,
		Clock:             sys,
		Logf:              func(string, ...any) {},
	})
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	sessions, err := session.New(session.Config{
		SessionLength: 1000,
		Source:        session.StaticValidators(validators),
		Genesis:       validators,
	})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	c, err := chain.New(chain.Config{System: sys, Beacon: beacon, Sessions: sessions, Runtime: rt, Logf: func(string, ...any) {}})
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	if err := rt.ScheduleParaInitialize(2000, paras.GenesisArgs{Code: []byte("code"), Parachain: true}); err != nil {
		t.Fatalf("schedule para: %v", err)
	}
	ctx := context.Background()
	if err := c.Genesis(ctx); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := c.ExecuteBlock(ctx); err != nil {
		t.Fatalf("execute block: %v", err)
	}
	return rt, c
}

// produceBlocks executes blocks until the test ends.
func produceBlocks(t *testing.T, c *chain.Chain) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if _, err := c.ExecuteBlock(ctx); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func dialAdmin(t *testing.T, srv AdminServer) AdminClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	RegisterAdminServer(server, srv)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial admin: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewAdminClient(conn)
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	in, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return in
}

func callWithTimeout(t *testing.T, client AdminClient, method string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Call(ctx, method, request(t, fields))
}

func assertReason(t *testing.T, err error, code codes.Code, reason apperrors.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("code = %v, want %v (err=%v)", status.Code(err), code, err)
	}
	if got, ok := apperrors.ReasonOf(err); !ok || got != reason {
		t.Fatalf("reason = %q (ok=%v), want %q", got, ok, reason)
	}
}

func TestUpdateConfiguration_StagesPending(t *testing.T) {
	rt, c := newRelay(t)
	produceBlocks(t, c)
	client := dialAdmin(t, NewService(c))

	resp, err := callWithTimeout(t, client, MethodUpdateConfiguration, map[string]any{"parathread_cores": 2})
	if err != nil {
		t.Fatalf("update configuration: %v", err)
	}
	if got := resp.GetFields()["block"].GetNumberValue(); got < 2 {
		t.Fatalf("block = %v, want an executed block", got)
	}
	snap, err := rt.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.PendingConfig == nil || snap.PendingConfig.ParathreadCores != 2 {
		t.Fatalf("pending = %+v, want parathread cores 2", snap.PendingConfig)
	}
	if snap.Config.ParathreadCores != configuration.Default().ParathreadCores {
		t.Fatalf("active parathread cores = %d, want default", snap.Config.ParathreadCores)
	}
}

func TestUpdateConfiguration_RejectsBadPatchBeforeQueueing(t *testing.T) {
	_, c := newRelay(t)
	client := dialAdmin(t, NewService(c))

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "unknown key", fields: map[string]any{"max_cores": 3}},
		{name: "fractional", fields: map[string]any{"parathread_cores": 1.5}},
		{name: "empty", fields: map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callWithTimeout(t, client, MethodUpdateConfiguration, tt.fields)
			assertReason(t, err, codes.InvalidArgument, apperrors.CodeCallInvalid)
			if got := c.PendingCalls(); got != 0 {
				t.Fatalf("pending calls = %d, want 0", got)
			}
		})
	}
}

func TestUpdateConfiguration_InconsistentResultIsInvalid(t *testing.T) {
	_, c := newRelay(t)
	produceBlocks(t, c)
	client := dialAdmin(t, NewService(c))

	_, err := callWithTimeout(t, client, MethodUpdateConfiguration, map[string]any{"no_show_slots": 0})
	assertReason(t, err, codes.InvalidArgument, apperrors.CodeCallInvalid)
}

func TestScheduleParaInitialize_RejectsDuplicates(t *testing.T) {
	_, c := newRelay(t)
	produceBlocks(t, c)
	client := dialAdmin(t, NewService(c))

	fields := map[string]any{"para": 3000, "code": "0x0102", "head": "aa"}
	if _, err := callWithTimeout(t, client, MethodScheduleParaInitialize, fields); err != nil {
		t.Fatalf("schedule para 3000: %v", err)
	}

	tests := []struct {
		name string
		para int
	}{
		{name: "scheduled", para: 3000},
		{name: "registered", para: 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callWithTimeout(t, client, MethodScheduleParaInitialize, map[string]any{"para": tt.para, "code": "00"})
			assertReason(t, err, codes.FailedPrecondition, apperrors.CodeCallRejected)
		})
	}
}

func TestCalls_RejectedByRuntime(t *testing.T) {
	_, c := newRelay(t)
	produceBlocks(t, c)
	client := dialAdmin(t, NewService(c))

	tests := []struct {
		name   string
		method string
		fields map[string]any
	}{
		{name: "cleanup unknown para", method: MethodScheduleParaCleanup, fields: map[string]any{"para": 4000}},
		{name: "no parathread cores", method: MethodAddParathreadClaim, fields: map[string]any{"para": 4000}},
		{name: "nothing pending", method: MethodNoteAvailable, fields: map[string]any{"para": 2000}},
		{name: "unknown validator", method: MethodDisableValidator, fields: map[string]any{"validator": 7}},
		{name: "accept without request", method: MethodAcceptChannel, fields: map[string]any{"sender": 2000, "recipient": 3000}},
		{name: "close missing channel", method: MethodCloseChannel, fields: map[string]any{"sender": 2000, "recipient": 3000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callWithTimeout(t, client, tt.method, tt.fields)
			assertReason(t, err, codes.FailedPrecondition, apperrors.CodeCallRejected)
		})
	}
}

func TestCalls_AcceptedByRuntime(t *testing.T) {
	_, c := newRelay(t)
	produceBlocks(t, c)
	client := dialAdmin(t, NewService(c))

	tests := []struct {
		name   string
		method string
		fields map[string]any
	}{
		{name: "back candidate", method: MethodBackCandidate, fields: map[string]any{"para": 2000, "head": "0xbeef"}},
		{name: "downward message", method: MethodQueueDownwardMessage, fields: map[string]any{"para": 2000, "message": "0x01"}},
		{name: "upward message", method: MethodEnqueueUpwardMessage, fields: map[string]any{"para": 2000, "message": "0x02"}},
		{name: "disable validator", method: MethodDisableValidator, fields: map[string]any{"validator": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := callWithTimeout(t, client, tt.method, tt.fields)
			if err != nil {
				t.Fatalf("%s: %v", tt.method, err)
			}
			if got := resp.GetFields()["block"].GetNumberValue(); got < 2 {
				t.Fatalf("block = %v, want an executed block", got)
			}
		})
	}
}

func TestCalls_RejectMalformedFields(t *testing.T) {
	_, c := newRelay(t)
	client := dialAdmin(t, NewService(c))

	tests := []struct {
		name   string
		method string
		fields map[string]any
	}{
		{name: "missing para", method: MethodAddParathreadClaim, fields: map[string]any{}},
		{name: "fractional para", method: MethodAddParathreadClaim, fields: map[string]any{"para": 1.5}},
		{name: "negative para", method: MethodScheduleParaCleanup, fields: map[string]any{"para": -1}},
		{name: "para too large", method: MethodScheduleParaCleanup, fields: map[string]any{"para": 1 << 33}},
		{name: "para as string", method: MethodNoteAvailable, fields: map[string]any{"para": "2000"}},
		{name: "bad hex", method: MethodQueueDownwardMessage, fields: map[string]any{"para": 2000, "message": "0xzz"}},
		{name: "missing code", method: MethodScheduleParaInitialize, fields: map[string]any{"para": 3000}},
		{name: "parachain not bool", method: MethodScheduleParaInitialize, fields: map[string]any{"para": 3000, "code": "00", "parachain": "yes"}},
		{name: "missing capacity", method: MethodOpenChannel, fields: map[string]any{"sender": 1, "recipient": 2, "max_message_size": 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callWithTimeout(t, client, tt.method, tt.fields)
			assertReason(t, err, codes.InvalidArgument, apperrors.CodeCallInvalid)
			if got := c.PendingCalls(); got != 0 {
				t.Fatalf("pending calls = %d, want 0", got)
			}
		})
	}
}

func TestSubmit_WithdrawnWithoutBlocks(t *testing.T) {
	_, c := newRelay(t)
	svc := NewService(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.AddParathreadClaim(ctx, request(t, map[string]any{"para": 2000}))
	assertReason(t, err, codes.DeadlineExceeded, apperrors.CodeCallWithdrawn)
	if got := c.PendingCalls(); got != 0 {
		t.Fatalf("pending calls = %d, want 0", got)
	}
}

type haltedChain struct{}

func (haltedChain) Submit(context.Context, string, chain.Call) (primitives.BlockNumber, error) {
	return 0, fmt.Errorf("%w: block 4: store offline", chain.ErrHalted)
}

func TestSubmit_HaltedChainUnavailable(t *testing.T) {
	client := dialAdmin(t, NewService(haltedChain{}))

	_, err := callWithTimeout(t, client, MethodNoteAvailable, map[string]any{"para": 2000})
	assertReason(t, err, codes.Unavailable, apperrors.CodeRuntimeHalted)
}

func TestService_NotConfigured(t *testing.T) {
	_, err := NewService(nil).NoteAvailable(context.Background(), request(t, map[string]any{"para": 1}))
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.Unavailable)
	}
}

func TestUnimplementedAdminServer(t *testing.T) {
	client := dialAdmin(t, UnimplementedAdminServer{})

	_, err := callWithTimeout(t, client, MethodOpenChannel, map[string]any{})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.Unimplemented)
	}
}
