// Package relayctl queries a running relay node's inspector API and submits
// admin calls to nodes that serve it.
package relayctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	entrypoint "github.com/louisbranch/relaychain/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/relaychain/internal/platform/grpc"
	"github.com/louisbranch/relaychain/internal/platform/timeouts"
	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/admin"
	"github.com/louisbranch/relaychain/internal/services/relay/api/grpc/inspector"
)

// Query names what relayctl prints.
type Query string

const (
	QueryStatus  Query = "status"
	QueryConfig  Query = "config"
	QuerySession Query = "session"
	QueryAdmin   Query = "admin"
)

// adminCalls maps command line call names to admin methods.
var adminCalls = map[string]string{
	"update-config":     admin.MethodUpdateConfiguration,
	"para-init":         admin.MethodScheduleParaInitialize,
	"para-cleanup":      admin.MethodScheduleParaCleanup,
	"parathread-claim":  admin.MethodAddParathreadClaim,
	"back-candidate":    admin.MethodBackCandidate,
	"note-available":    admin.MethodNoteAvailable,
	"downward":          admin.MethodQueueDownwardMessage,
	"upward":            admin.MethodEnqueueUpwardMessage,
	"hrmp-open":         admin.MethodOpenChannel,
	"hrmp-accept":       admin.MethodAcceptChannel,
	"hrmp-close":        admin.MethodCloseChannel,
	"disable-validator": admin.MethodDisableValidator,
}

// Config holds relayctl configuration.
type Config struct {
	Addr        string        `env:"ADDR"         envDefault:"localhost:9944"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	// CallTimeout bounds an admin call, which waits for its block.
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"30s"`
	Query       Query
	Session     uint32
	// Method and Args describe an admin call.
	Method string
	Args   map[string]any
}

// ParseConfig parses environment, flags and the positional query into Config.
//
//	relayctl [flags] status
//	relayctl [flags] config
//	relayctl [flags] session <index>
//	relayctl [flags] admin <call> [key=value...]
//
// Admin values starting with 0x stay hex strings, true and false are
// booleans, and anything else that parses as a number is a number.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.GRPCDial
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "relay node inspector address")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "wait this long for the node to report healthy")
	fs.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "wait this long for an admin call's block")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	cfg.Query = QueryStatus
	if len(rest) > 0 {
		cfg.Query = Query(strings.ToLower(strings.TrimSpace(rest[0])))
	}
	switch cfg.Query {
	case QueryStatus, QueryConfig:
		if len(rest) > 1 {
			return Config{}, fmt.Errorf("%s takes no arguments", cfg.Query)
		}
	case QuerySession:
		if len(rest) != 2 {
			return Config{}, errors.New("session requires exactly one index")
		}
		index, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("parse session index %q: %w", rest[1], err)
		}
		cfg.Session = uint32(index)
	case QueryAdmin:
		if len(rest) < 2 {
			return Config{}, errors.New("admin requires a call name")
		}
		method, ok := adminCalls[rest[1]]
		if !ok {
			return Config{}, fmt.Errorf("unknown admin call %q", rest[1])
		}
		args, err := parseCallArgs(rest[2:])
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", rest[1], err)
		}
		if cfg.CallTimeout <= 0 {
			return Config{}, errors.New("call timeout must be positive")
		}
		cfg.Method = method
		cfg.Args = args
	default:
		return Config{}, fmt.Errorf("unknown query %q", cfg.Query)
	}
	return cfg, nil
}

func parseCallArgs(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", arg)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("argument %q repeated", key)
		}
		out[key] = parseCallValue(value)
	}
	return out, nil
}

func parseCallValue(value string) any {
	if strings.HasPrefix(value, "0x") {
		return value
	}
	if value == "true" || value == "false" {
		return value == "true"
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}

// Run dials the node and prints the query result as JSON.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	service := inspector.ServiceName
	if cfg.Query == QueryAdmin {
		service = admin.ServiceName
	}
	conn, err := platformgrpc.DialServiceWithHealth(ctx, nil, cfg.Addr, service, cfg.DialTimeout, nil,
		platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("connect to relay node %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	var result proto.Message
	if cfg.Query == QueryAdmin {
		result, err = callAdmin(ctx, conn, cfg)
	} else {
		result, err = query(ctx, inspector.NewInspectorClient(conn), cfg)
	}
	if err != nil {
		return err
	}

	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cfg.Query, err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func query(ctx context.Context, client inspector.InspectorClient, cfg Config) (proto.Message, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()

	var result proto.Message
	var err error
	switch cfg.Query {
	case QueryConfig:
		result, err = client.HostConfiguration(callCtx, &emptypb.Empty{})
	case QuerySession:
		result, err = client.SessionInfo(callCtx, wrapperspb.UInt32(cfg.Session))
	default:
		result, err = client.Status(callCtx, &emptypb.Empty{})
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Query, err)
	}
	return result, nil
}

// callAdmin refuses to queue a call on a halted runtime, then waits for the
// block that includes it.
func callAdmin(ctx context.Context, conn *grpc.ClientConn, cfg Config) (proto.Message, error) {
	healthCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	err := platformgrpc.WaitForHealth(healthCtx, conn, inspector.RuntimeHealthService, nil)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("relay runtime: %w", err)
	}
	in, err := structpb.NewStruct(cfg.Args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", cfg.Method, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	result, err := admin.NewAdminClient(conn).Call(callCtx, cfg.Method, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Method, err)
	}
	return result, nil
}
