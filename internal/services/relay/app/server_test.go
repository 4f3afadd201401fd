package server

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/admin"
	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/inspector"
	"github.com/louisbranch/relaychain/internal/services/relay/genesis"
)

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	srv, err := New(opts)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})
	return srv
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial relay server: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})
	return conn
}

func TestServer_ProducesBlocksAndServesInspector(t *testing.T) {
	g := genesis.Dev()
	g.SessionLength = 3
	srv := startServer(t, Options{
		Addr:        "127.0.0.1:0",
		MetricsAddr: "127.0.0.1:0",
		DBPath:      filepath.Join(t.TempDir(), "relay.db"),
		Genesis:     g,
		BlockTime:   5 * time.Millisecond,
		MaxBlocks:   7,
	})
	conn := dial(t, srv.Addr())
	client := inspector.NewInspectorClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var blockNumber float64
	for blockNumber < 7 {
		resp, err := client.Status(ctx, &emptypb.Empty{})
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		blockNumber = resp.GetFields()["block_number"].GetNumberValue()
		if blockNumber < 7 {
			select {
			case <-ctx.Done():
				t.Fatalf("block number = %v before deadline, want 7", blockNumber)
			case <-time.After(10 * time.Millisecond):
			}
		}
	}

	resp, err := client.Status(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if got := resp.GetFields()["session_index"].GetNumberValue(); got != 2 {
		t.Fatalf("session_index = %v, want 2", got)
	}
	if got := len(resp.GetFields()["paras"].GetListValue().GetValues()); got != 1 {
		t.Fatalf("paras = %d, want 1 genesis para", got)
	}

	info, err := client.SessionInfo(ctx, wrapperspb.UInt32(2))
	if err != nil {
		t.Fatalf("session info: %v", err)
	}
	if got := len(info.GetFields()["validators"].GetListValue().GetValues()); got != 4 {
		t.Fatalf("validators = %d, want 4", got)
	}

	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: inspector.RuntimeHealthService})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if health.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("runtime health = %v, want SERVING", health.GetStatus())
	}

	metricsResp, err := http.Get("http://" + srv.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "relaychain_blocks_initialized_total 7") {
		t.Fatalf("metrics missing block count:\n%s", body)
	}
}

func TestServer_AdminUpdatesConfiguration(t *testing.T) {
	g := genesis.Dev()
	g.SessionLength = 1000
	srv := startServer(t, Options{
		Addr:      "127.0.0.1:0",
		DBPath:    filepath.Join(t.TempDir(), "relay.db"),
		Genesis:   g,
		BlockTime: 5 * time.Millisecond,
		Admin:     true,
	})
	conn := dial(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: admin.ServiceName})
	if err != nil {
		t.Fatalf("admin health: %v", err)
	}
	if health.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("admin health = %v, want SERVING", health.GetStatus())
	}

	patch, err := structpb.NewStruct(map[string]any{"needed_approvals": 9})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	resp, err := admin.NewAdminClient(conn).Call(ctx, admin.MethodUpdateConfiguration, patch)
	if err != nil {
		t.Fatalf("update configuration: %v", err)
	}
	if got := resp.GetFields()["block"].GetNumberValue(); got < 1 {
		t.Fatalf("block = %v, want an executed block", got)
	}

	cfg, err := inspector.NewInspectorClient(conn).HostConfiguration(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("host configuration: %v", err)
	}
	pending := cfg.GetFields()["pending"].GetStructValue().GetFields()
	if got := pending["needed_approvals"].GetNumberValue(); got != 9 {
		t.Fatalf("pending needed_approvals = %v, want 9", got)
	}
}

func TestServer_AdminDisabledByDefault(t *testing.T) {
	srv := startServer(t, Options{
		Addr:      "127.0.0.1:0",
		DBPath:    filepath.Join(t.TempDir(), "relay.db"),
		Genesis:   genesis.Dev(),
		BlockTime: 5 * time.Millisecond,
		MaxBlocks: 1,
	})
	conn := dial(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: admin.ServiceName})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("admin health code = %v, want %v", status.Code(err), codes.NotFound)
	}
	_, err = admin.NewAdminClient(conn).Call(ctx, admin.MethodDisableValidator, &structpb.Struct{})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("admin call code = %v, want %v", status.Code(err), codes.Unimplemented)
	}
}

func TestNew_RejectsEmptyGenesis(t *testing.T) {
	_, err := New(Options{
		Addr:   "127.0.0.1:0",
		DBPath: filepath.Join(t.TempDir(), "relay.db"),
	})
	if err == nil {
		t.Fatal("expected error for genesis without validators")
	}
}

func TestNew_UsesEnvDBPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "relay.db")
	t.Setenv("RELAYCHAIN_DB_PATH", dbPath)

	srv, err := New(Options{Addr: "127.0.0.1:0", Genesis: genesis.Dev()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.Close()
	if srv.MetricsAddr() != "" {
		t.Fatalf("metrics addr = %q, want disabled", srv.MetricsAddr())
	}
}

func TestServe_NilServer(t *testing.T) {
	var srv *Server
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}
