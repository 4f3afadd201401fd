// Package main runs the relay node inspector client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	relayctlcmd "github.com/louisbranch/relaychain/internal/cmd/relayctl"
	entrypoint "github.com/louisbranch/relaychain/internal/platform/cmd"
	"github.com/louisbranch/relaychain/internal/platform/config"
)

func main() {
	cfg, err := relayctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf(config.ExitUsage, "relayctl: %v", err)
	}
	log.SetPrefix("[RELAYCTL] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelayCtl, func(ctx context.Context) error {
		return relayctlcmd.Run(ctx, cfg, os.Stdout)
	})
	if err != nil {
		config.Exitf(config.ExitFailure, "relayctl: %v", err)
	}
}
