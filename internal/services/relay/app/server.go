// Package server wires the relay runtime, its block loop and the gRPC
// lifecycle of the inspector and the optional admin service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/relaychain/internal/platform/config"
	"github.com/louisbranch/relaychain/internal/platform/timeouts"
	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/admin"
	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/inspector"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/chain"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/parachains"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/primitives"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/randomness"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/session"
	"github.com/louisbranch/relaychain/internal/services/relay/domain/system"
	"github.com/louisbranch/relaychain/internal/services/relay/genesis"
	"github.com/louisbranch/relaychain/internal/services/relay/observability/metrics"
	relaysqlite "github.com/louisbranch/relaychain/internal/services/relay/storage/sqlite"
)

type serverEnv struct {
	DBPath string `env:"DB_PATH"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "relay.db")
	}
	return cfg
}

// Options configures a relay node.
type Options struct {
	// Addr is the inspector gRPC listen address.
	Addr string
	// MetricsAddr serves Prometheus metrics; empty disables the endpoint.
	MetricsAddr string
	// DBPath overrides RELAYCHAIN_DB_PATH.
	DBPath  string
	Genesis genesis.Genesis
	// BlockTime overrides the genesis block time when positive.
	BlockTime time.Duration
	// MaxBlocks stops block production after that many blocks; zero runs forever.
	MaxBlocks uint32
	// Admin registers the admin service, which mutates runtime state.
	Admin bool
}

// Server hosts the relay runtime, the inspector gRPC API and the metrics endpoint.
type Server struct {
	listener        net.Listener
	grpcServer      *grpc.Server
	health          *health.Server
	metricsListener net.Listener
	metricsServer   *http.Server
	store           *relaysqlite.Store

	runtime   *parachains.Runtime
	chain     *chain.Chain
	recorder  *metrics.Recorder
	blockTime time.Duration
	maxBlocks uint32
	admin     bool
}

// New creates a relay node listening on opts.Addr with genesis applied.
func New(opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", opts.Addr, err)
	}

	dbPath := strings.TrimSpace(opts.DBPath)
	if dbPath == "" {
		dbPath = loadServerEnv().DBPath
	}
	store, err := openRelayStore(context.Background(), dbPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	s := &Server{
		listener:  listener,
		store:     store,
		recorder:  metrics.New(),
		blockTime: opts.Genesis.BlockTime,
		maxBlocks: opts.MaxBlocks,
		admin:     opts.Admin,
	}
	if opts.BlockTime > 0 {
		s.blockTime = opts.BlockTime
	}
	if s.blockTime <= 0 {
		s.blockTime = genesis.DefaultBlockTime
	}
	if err := s.buildRuntime(context.Background(), opts.Genesis); err != nil {
		s.Close()
		return nil, err
	}

	if addr := strings.TrimSpace(opts.MetricsAddr); addr != "" {
		metricsListener, err := net.Listen("tcp", addr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen metrics on %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.recorder.Handler())
		s.metricsListener = metricsListener
		s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	}

	s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.health = health.NewServer()
	inspector.RegisterInspectorServer(s.grpcServer, inspector.NewService(s.runtime, s.chain))
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(inspector.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(inspector.RuntimeHealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	if s.admin {
		admin.RegisterAdminServer(s.grpcServer, admin.NewService(s.chain))
		s.health.SetServingStatus(admin.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return s, nil
}

func (s *Server) buildRuntime(ctx context.Context, g genesis.Genesis) error {
	if len(g.Validators) == 0 {
		return genesis.ErrNoValidators
	}
	sys := system.New(primitives.Hash(g.RandomnessSeed))
	beacon := randomness.NewBeacon(g.RandomnessSeed)
	rt, err := parachains.New(parachains.Config{
		HostConfiguration: g.HostConfiguration,
		Store:             s.store,
		Randomness:        beacon,
		Clock:             sys,
		Observer:          s.recorder,
		UpwardSink:        logUpward{},
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	var source session.ValidatorSource = session.StaticValidators(g.Validators)
	if g.Rotates() {
		source = session.RotatingValidators{Pool: g.Validators, Size: g.ActiveValidators}
	}
	sessions, err := session.New(session.Config{
		SessionLength: g.SessionLength,
		Source:        source,
		Genesis:       g.GenesisValidators(),
	})
	if err != nil {
		return fmt.Errorf("build session manager: %w", err)
	}
	c, err := chain.New(chain.Config{System: sys, Beacon: beacon, Sessions: sessions, Runtime: rt})
	if err != nil {
		return fmt.Errorf("build chain: %w", err)
	}
	if err := g.Apply(rt); err != nil {
		return err
	}
	if err := c.Genesis(ctx); err != nil {
		return err
	}
	s.runtime = rt
	s.chain = c
	log.Printf("relay genesis %s: %d validators (%d active), %d paras, session length %d",
		g.ChainID, len(g.Validators), g.ActiveValidators, len(g.Paras), g.SessionLength)
	return nil
}

// Addr returns the inspector listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MetricsAddr returns the metrics listener address, or empty when disabled.
func (s *Server) MetricsAddr() string {
	if s == nil || s.metricsListener == nil {
		return ""
	}
	return s.metricsListener.Addr().String()
}

// Run creates and serves a relay node until context cancellation.
func Run(ctx context.Context, opts Options) error {
	server, err := New(opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve produces blocks and serves the inspector until context cancellation
// or a fatal block failure, which is returned.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("relay inspector listening at %v (admin %t)", s.listener.Addr(), s.admin)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	if s.metricsServer != nil {
		log.Printf("relay metrics listening at %v", s.metricsListener.Addr())
		g.Go(func() error {
			if err := s.metricsServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return s.produceBlocks(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()
		if s.metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Printf("shutdown metrics server: %v", err)
			}
		}
		s.grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

func (s *Server) produceBlocks(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(s.blockTime), 1)
	var produced uint32
	for s.maxBlocks == 0 || produced < s.maxBlocks {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		// A block runs to completion once started.
		block, err := s.chain.ExecuteBlock(context.WithoutCancel(ctx))
		if err != nil {
			s.recorder.ChainHalted()
			s.health.SetServingStatus(inspector.RuntimeHealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			if s.admin {
				s.health.SetServingStatus(admin.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			}
			log.Printf("relay halted at block %d: %v", s.chain.Last().Number+1, err)
			return err
		}
		produced++
		if block.SessionRotated {
			log.Printf("block %d %s: session %d, weight %d", block.Number, block.Hash, block.Session, block.Weight)
		}
	}
	log.Printf("relay stopped producing after %d blocks", produced)
	return nil
}

// Close releases relay server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Close()
	} else if s.metricsListener != nil {
		_ = s.metricsListener.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close relay store: %v", err)
		}
		s.store = nil
	}
}

// openRelayStore opens the initializer store and drops state left by a block
// that never finished. The runtime restarts from genesis, so stale buffered
// changes would otherwise be applied to the wrong chain.
func openRelayStore(ctx context.Context, path string) (*relaysqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := relaysqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open relay sqlite store: %w", err)
	}
	stale, err := store.TakeSessionChanges(ctx)
	if err == nil {
		err = store.ClearInitialized(ctx)
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("reset relay store: %w", err)
	}
	if len(stale) > 0 {
		log.Printf("relay store: dropped %d buffered session change(s) from an unfinished block", len(stale))
	}
	return store, nil
}

type logUpward struct{}

func (logUpward) Dispatch(para primitives.ParaID, msg []byte) {
	log.Printf("upward message from para %d: %d bytes", para, len(msg))
}
