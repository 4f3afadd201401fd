package admin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relaychain.relay.v1.Admin"

// Method names. Every method takes and returns a Struct.
const (
	MethodUpdateConfiguration    = "UpdateConfiguration"
	MethodScheduleParaInitialize = "ScheduleParaInitialize"
	MethodScheduleParaCleanup    = "ScheduleParaCleanup"
	MethodAddParathreadClaim     = "AddParathreadClaim"
	MethodBackCandidate          = "BackCandidate"
	MethodNoteAvailable          = "NoteAvailable"
	MethodQueueDownwardMessage   = "QueueDownwardMessage"
	MethodEnqueueUpwardMessage   = "EnqueueUpwardMessage"
	MethodOpenChannel            = "OpenChannel"
	MethodAcceptChannel          = "AcceptChannel"
	MethodCloseChannel           = "CloseChannel"
	MethodDisableValidator       = "DisableValidator"
)

// AdminServer submits runtime calls that run inside the next block.
type AdminServer interface {
	UpdateConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScheduleParaInitialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScheduleParaCleanup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddParathreadClaim(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BackCandidate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NoteAvailable(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueueDownwardMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EnqueueUpwardMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenChannel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcceptChannel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseChannel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DisableValidator(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedAdminServer can be embedded to have forward compatible implementations.
type UnimplementedAdminServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedAdminServer) UpdateConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodUpdateConfiguration)
}
func (UnimplementedAdminServer) ScheduleParaInitialize(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodScheduleParaInitialize)
}
func (UnimplementedAdminServer) ScheduleParaCleanup(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodScheduleParaCleanup)
}
func (UnimplementedAdminServer) AddParathreadClaim(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAddParathreadClaim)
}
func (UnimplementedAdminServer) BackCandidate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodBackCandidate)
}
func (UnimplementedAdminServer) NoteAvailable(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodNoteAvailable)
}
func (UnimplementedAdminServer) QueueDownwardMessage(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodQueueDownwardMessage)
}
func (UnimplementedAdminServer) EnqueueUpwardMessage(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodEnqueueUpwardMessage)
}
func (UnimplementedAdminServer) OpenChannel(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodOpenChannel)
}
func (UnimplementedAdminServer) AcceptChannel(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAcceptChannel)
}
func (UnimplementedAdminServer) CloseChannel(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCloseChannel)
}
func (UnimplementedAdminServer) DisableValidator(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodDisableValidator)
}

// RegisterAdminServer registers the admin service on a gRPC server.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&Admin_ServiceDesc, srv)
}

// AdminClient invokes admin methods by name.
type AdminClient interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type adminClient struct{ cc grpc.ClientConnInterface }

// NewAdminClient creates a client on cc.
func NewAdminClient(cc grpc.ClientConnInterface) AdminClient {
	return &adminClient{cc: cc}
}

func (c *adminClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type structMethod func(AdminServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(method string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Admin_ServiceDesc is the grpc.ServiceDesc for the admin service.
var Admin_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		structHandler(MethodUpdateConfiguration, AdminServer.UpdateConfiguration),
		structHandler(MethodScheduleParaInitialize, AdminServer.ScheduleParaInitialize),
		structHandler(MethodScheduleParaCleanup, AdminServer.ScheduleParaCleanup),
		structHandler(MethodAddParathreadClaim, AdminServer.AddParathreadClaim),
		structHandler(MethodBackCandidate, AdminServer.BackCandidate),
		structHandler(MethodNoteAvailable, AdminServer.NoteAvailable),
		structHandler(MethodQueueDownwardMessage, AdminServer.QueueDownwardMessage),
		structHandler(MethodEnqueueUpwardMessage, AdminServer.EnqueueUpwardMessage),
		structHandler(MethodOpenChannel, AdminServer.OpenChannel),
		structHandler(MethodAcceptChannel, AdminServer.AcceptChannel),
		structHandler(MethodCloseChannel, AdminServer.CloseChannel),
		structHandler(MethodDisableValidator, AdminServer.DisableValidator),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relaychain/relay/v1/admin.proto",
}
