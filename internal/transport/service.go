package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "replkv.v1.KV"

	proposeMethod  = "/" + ServiceName + "/Propose"
	lookupMethod   = "/" + ServiceName + "/Lookup"
	hashMethod     = "/" + ServiceName + "/Hash"
	snapshotMethod = "/" + ServiceName + "/Snapshot"
)

// KVServer is the client-facing API. Commands, queries and lookup results
// travel as raw bytes; update results, digests and snapshot indexes as uint64.
type KVServer interface {
	Propose(ctx context.Context, cmd *wrapperspb.BytesValue) (*wrapperspb.UInt64Value, error)
	Lookup(ctx context.Context, query *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Hash(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	Snapshot(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error)
}

func RegisterKVServer(s grpc.ServiceRegistrar, srv KVServer) {
	s.RegisterService(&KVServiceDesc, srv)
}

var KVServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KVServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Propose", Handler: proposeHandler},
		{MethodName: "Lookup", Handler: lookupHandler},
		{MethodName: "Hash", Handler: hashHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func proposeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Propose(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: proposeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KVServer).Propose(ctx, req.(*wrapperspb.BytesValue))
	})
}

func lookupHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Lookup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: lookupMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KVServer).Lookup(ctx, req.(*wrapperspb.BytesValue))
	})
}

func hashHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Hash(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: hashMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KVServer).Hash(ctx, req.(*emptypb.Empty))
	})
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KVServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: snapshotMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(KVServer).Snapshot(ctx, req.(*emptypb.Empty))
	})
}
