// Package main starts the relay node process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	relaynodecmd "github.com/louisbranch/relaychain/internal/cmd/relaynode"
	"github.com/louisbranch/relaychain/internal/platform/config"
)

func main() {
	cfg, err := relaynodecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf(config.ExitUsage, "relaynode: %v", err)
	}
	log.SetPrefix("[RELAY] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := relaynodecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("relay node stopped: %v", err)
	}
}
