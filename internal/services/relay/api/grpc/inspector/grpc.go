package inspector

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relaychain.relay.v1.Inspector"

// RuntimeHealthService is the health service name that tracks block
// production. It stops serving once the chain halts.
const RuntimeHealthService = "relay.runtime"

const (
	statusMethod            = "/" + ServiceName + "/Status"
	hostConfigurationMethod = "/" + ServiceName + "/HostConfiguration"
	sessionInfoMethod       = "/" + ServiceName + "/SessionInfo"
)

// InspectorServer is the server API for the read-only runtime inspector.
//
// Messages are protobuf well-known types so the service needs no generated code.
type InspectorServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	HostConfiguration(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SessionInfo(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
}

// UnimplementedInspectorServer can be embedded to have forward compatible implementations.
type UnimplementedInspectorServer struct{}

func (UnimplementedInspectorServer) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedInspectorServer) HostConfiguration(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method HostConfiguration not implemented")
}
func (UnimplementedInspectorServer) SessionInfo(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SessionInfo not implemented")
}

// RegisterInspectorServer registers the inspector on a gRPC server.
func RegisterInspectorServer(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&Inspector_ServiceDesc, srv)
}

// InspectorClient is the client API for the inspector service.
type InspectorClient interface {
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	HostConfiguration(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	SessionInfo(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type inspectorClient struct{ cc grpc.ClientConnInterface }

// NewInspectorClient creates a client on cc.
func NewInspectorClient(cc grpc.ClientConnInterface) InspectorClient {
	return &inspectorClient{cc: cc}
}

func (c *inspectorClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, statusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inspectorClient) HostConfiguration(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, hostConfigurationMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inspectorClient) SessionInfo(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, sessionInfoMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Inspector_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Inspector_HostConfiguration_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).HostConfiguration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: hostConfigurationMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).HostConfiguration(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Inspector_SessionInfo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectorServer).SessionInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sessionInfoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectorServer).SessionInfo(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// Inspector_ServiceDesc is the grpc.ServiceDesc for the inspector service.
var Inspector_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: _Inspector_Status_Handler},
		{MethodName: "HostConfiguration", Handler: _Inspector_HostConfiguration_Handler},
		{MethodName: "SessionInfo", Handler: _Inspector_SessionInfo_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relaychain/relay/v1/inspector.proto",
}
