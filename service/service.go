// Package service exposes the countdown over gRPC.
//
// Messages are well-known protobuf types, so no generated code is needed:
// requests are google.protobuf.Empty and every countdown update is a
// google.protobuf.Struct carrying the fields of display.View.
package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName    = "candleclock.v1.Countdown"
	snapshotMethod = "/" + ServiceName + "/Snapshot"
	watchMethod    = "/" + ServiceName + "/Watch"
)

// CountdownServer is the server API for the countdown service.
type CountdownServer interface {
	// Snapshot returns the current countdown state.
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Watch streams the state on subscribe and after every change.
	Watch(*emptypb.Empty, WatchServer) error
}

type WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterCountdownServer(s grpc.ServiceRegistrar, srv CountdownServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CountdownServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: snapshotMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CountdownServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CountdownServer).Watch(m, &watchServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc for the countdown service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CountdownServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Snapshot",
			Handler:    snapshotHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "candleclock/v1/countdown.proto",
}
