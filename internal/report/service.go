package report

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "lwwbench.report.v1.Collector"

	publishMethod = "/" + ServiceName + "/Publish"
)

// CollectorServer is the server API for the Collector service.
type CollectorServer interface {
	Publish(ctx context.Context, report *structpb.Struct) (*emptypb.Empty, error)
}

// CollectorClient is the client API for the Collector service.
type CollectorClient interface {
	Publish(ctx context.Context, report *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

// RegisterCollectorServer registers srv on s.
func RegisterCollectorServer(s grpc.ServiceRegistrar, srv CollectorServer) {
	s.RegisterService(&collectorServiceDesc, srv)
}

// NewCollectorClient returns a client calling the service over cc.
func NewCollectorClient(cc grpc.ClientConnInterface) CollectorClient {
	return &collectorClient{cc: cc}
}

type collectorClient struct {
	cc grpc.ClientConnInterface
}

func (c *collectorClient) Publish(ctx context.Context, report *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, publishMethod, report, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CollectorServer).Publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: publishMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CollectorServer).Publish(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var collectorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CollectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Publish",
			Handler:    publishHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lwwbench/report/v1/collector.proto",
}
