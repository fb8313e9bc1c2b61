package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names.
const (
	DiscoverMethod             = "/" + ServiceName + "/Discover"
	DiscoverSearchConfigMethod = "/" + ServiceName + "/DiscoverSearchConfig"
)

// ServiceDesc describes MatchService for grpc.Server.RegisterService.
//
//	service MatchService {
//	  rpc Discover(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc DiscoverSearchConfig(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Discover", Handler: unary(DiscoverMethod, MatchServiceServer.Discover)},
		{MethodName: "DiscoverSearchConfig", Handler: unary(DiscoverSearchConfigMethod, MatchServiceServer.DiscoverSearchConfig)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jobmate/match/v1/match.proto",
}

type structMethod func(MatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call structMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls MatchService over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient returns a MatchService client.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Discover invokes MatchService/Discover.
func (c *Client) Discover(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, DiscoverMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// DiscoverSearchConfig invokes MatchService/DiscoverSearchConfig.
func (c *Client) DiscoverSearchConfig(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, DiscoverSearchConfigMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
