package grpc_server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is registered by hand; requests and replies are
// google.protobuf.Struct so no generated stubs are needed.
const ServiceName = "habitquest.moderation.v1.ModerationService"

type ModerationServiceServer interface {
	ListPending(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SubmitDecision(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterModerationServiceServer(s grpc.ServiceRegistrar, srv ModerationServiceServer) {
	s.RegisterService(&moderationServiceDesc, srv)
}

func unaryHandler(method string, call func(ModerationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ModerationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ModerationServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var moderationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModerationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListPending",
			Handler:    unaryHandler("ListPending", ModerationServiceServer.ListPending),
		},
		{
			MethodName: "SubmitDecision",
			Handler:    unaryHandler("SubmitDecision", ModerationServiceServer.SubmitDecision),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "habitquest/moderation/v1/moderation.proto",
}

// ModerationClient calls the service over any client connection.
type ModerationClient struct {
	cc grpc.ClientConnInterface
}

func NewModerationClient(cc grpc.ClientConnInterface) *ModerationClient {
	return &ModerationClient{cc: cc}
}

func (c *ModerationClient) ListPending(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListPending", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ModerationClient) SubmitDecision(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/SubmitDecision", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
