package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/relaychain/internal/platform/timeouts"
)

var (
	// ErrServiceDown reports a named service that is NOT_SERVING on a server
	// that is itself up, such as a relay runtime that halted.
	ErrServiceDown = errors.New("health service is not serving")
	// ErrServiceUnknown reports a named service the server never registered.
	ErrServiceUnknown = errors.New("health service is not registered")
)

const (
	initialHealthBackoff = 200 * time.Millisecond
	maxHealthBackoff     = time.Second
)

// WaitForHealth blocks until service reports SERVING or the context ends.
//
// While the server-wide status is not SERVING the server is still starting
// and the wait continues. Once it serves, a named service that is
// NOT_SERVING or unknown will not recover on its own, so the wait fails with
// ErrServiceDown or ErrServiceUnknown.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	backoff := initialHealthBackoff
	for {
		state, err := checkHealth(ctx, client, service)
		if err == nil && state == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("gRPC health %q is SERVING", service)
			}
			return nil
		}
		if service != "" {
			if settledErr := settledFailure(ctx, client, service, state, err); settledErr != nil {
				return settledErr
			}
		}
		if logf != nil {
			if err != nil {
				logf("waiting for gRPC health %q: %v", service, err)
			} else {
				logf("waiting for gRPC health %q: status %s", service, state)
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health %q: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxHealthBackoff)
	}
}

func checkHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// settledFailure returns an error when service is down or missing on a
// server that already serves.
func settledFailure(ctx context.Context, client grpc_health_v1.HealthClient, service string, state grpc_health_v1.HealthCheckResponse_ServingStatus, err error) error {
	down := err == nil && state == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	unknown := status.Code(err) == codes.NotFound
	if !down && !unknown {
		return nil
	}
	server, serverErr := checkHealth(ctx, client, "")
	if serverErr != nil || server != grpc_health_v1.HealthCheckResponse_SERVING {
		return nil
	}
	if unknown {
		return fmt.Errorf("%w: %q", ErrServiceUnknown, service)
	}
	return fmt.Errorf("%w: %q", ErrServiceDown, service)
}
