// Package timeouts defines shared timeout constants used across the node and
// its command-line client.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// GRPCRequest caps the time allowed for a single inspector request.
const GRPCRequest = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the node waits for in-flight requests and the
// current block during graceful shutdown.
const Shutdown = 5 * time.Second
