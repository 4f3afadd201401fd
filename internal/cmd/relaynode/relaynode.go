// Package relaynode parses relay node flags and launches the node.
package relaynode

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/relaychain/internal/platform/cmd"
	server "github.com/louisbranch/relaychain/internal/services/relay/app"
	"github.com/louisbranch/relaychain/internal/services/relay/genesis"
)

// Config holds relay node command configuration.
type Config struct {
	Addr        string        `env:"ADDR"         envDefault:":9944"`
	MetricsAddr string        `env:"METRICS_ADDR" envDefault:":9615"`
	DBPath      string        `env:"DB_PATH"`
	Genesis     string        `env:"GENESIS"`
	BlockTime   time.Duration `env:"BLOCK_TIME"`
	MaxBlocks   uint          `env:"MAX_BLOCKS"`
	Admin       bool          `env:"ADMIN"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The inspector gRPC listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the initializer sqlite store")
	fs.StringVar(&cfg.Genesis, "genesis", cfg.Genesis, "Path to a genesis YAML file (empty runs the dev chain)")
	fs.DurationVar(&cfg.BlockTime, "block-time", cfg.BlockTime, "Override the genesis block time")
	fs.UintVar(&cfg.MaxBlocks, "max-blocks", cfg.MaxBlocks, "Stop producing after this many blocks (0 runs forever)")
	fs.BoolVar(&cfg.Admin, "admin", cfg.Admin, "Serve the admin API that submits runtime calls")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadGenesis resolves the configured genesis, falling back to the dev chain.
func (c Config) LoadGenesis() (genesis.Genesis, error) {
	path := strings.TrimSpace(c.Genesis)
	if path == "" {
		return genesis.Dev(), nil
	}
	g, err := genesis.Load(path)
	if err != nil {
		return genesis.Genesis{}, fmt.Errorf("load genesis %s: %w", path, err)
	}
	return g, nil
}

// Run starts the relay node.
func Run(ctx context.Context, cfg Config) error {
	g, err := cfg.LoadGenesis()
	if err != nil {
		return err
	}
	if cfg.MaxBlocks > uint(^uint32(0)) {
		return fmt.Errorf("max blocks %d exceeds the block number range", cfg.MaxBlocks)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelayNode, func(ctx context.Context) error {
		return server.Run(ctx, server.Options{
			Addr:        cfg.Addr,
			MetricsAddr: cfg.MetricsAddr,
			DBPath:      cfg.DBPath,
			Genesis:     g,
			BlockTime:   cfg.BlockTime,
			MaxBlocks:   uint32(cfg.MaxBlocks),
			Admin:       cfg.Admin,
		})
	})
}
