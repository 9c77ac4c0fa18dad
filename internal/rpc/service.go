// Package rpc exposes an episode controller to an out-of-process trainer
// over gRPC. Messages are google.protobuf.Struct values so no generated
// code is needed on either side.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "trackgym.v1.Environment"

const (
	describeMethod = "/" + ServiceName + "/Describe"
	resetMethod    = "/" + ServiceName + "/Reset"
	stepMethod     = "/" + ServiceName + "/Step"
)

// EnvironmentServer is the server API of the environment service.
type EnvironmentServer interface {
	Describe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var environmentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvironmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: unaryHandler(describeMethod, EnvironmentServer.Describe)},
		{MethodName: "Reset", Handler: unaryHandler(resetMethod, EnvironmentServer.Reset)},
		{MethodName: "Step", Handler: unaryHandler(stepMethod, EnvironmentServer.Step)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trackgym/v1/environment.proto",
}

func RegisterEnvironmentServer(s grpc.ServiceRegistrar, srv EnvironmentServer) {
	s.RegisterService(&environmentServiceDesc, srv)
}

type unaryCall func(EnvironmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EnvironmentServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(EnvironmentServer), ctx, req.(*structpb.Struct))
		})
	}
}
