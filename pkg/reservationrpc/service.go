package reservationrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "portwatch.v1.ReservationService"

const (
	methodAcquire     = "/" + ServiceName + "/Acquire"
	methodRelease     = "/" + ServiceName + "/Release"
	methodCheckActive = "/" + ServiceName + "/CheckActive"
	methodListActive  = "/" + ServiceName + "/ListActive"
)

// ReservationServer is implemented by the server side of the service.
type ReservationServer interface {
	Acquire(context.Context, *AcquireRequest) (*AcquireResponse, error)
	Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error)
	CheckActive(context.Context, *CheckActiveRequest) (*CheckActiveResponse, error)
	ListActive(context.Context, *ListActiveRequest) (*ListActiveResponse, error)
}

// RegisterReservationServer registers srv on s.
func RegisterReservationServer(s grpc.ServiceRegistrar, srv ReservationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes portwatch.v1.ReservationService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReservationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Acquire", Handler: acquireHandler},
		{MethodName: "Release", Handler: releaseHandler},
		{MethodName: "CheckActive", Handler: checkActiveHandler},
		{MethodName: "ListActive", Handler: listActiveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portwatch/v1/reservation.json",
}

func acquireHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AcquireRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationServer).Acquire(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAcquire}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReservationServer).Acquire(ctx, req.(*AcquireRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func releaseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReleaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationServer).Release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRelease}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReservationServer).Release(ctx, req.(*ReleaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func checkActiveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckActiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationServer).CheckActive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheckActive}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReservationServer).CheckActive(ctx, req.(*CheckActiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listActiveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListActiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReservationServer).ListActive(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListActive}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReservationServer).ListActive(ctx, req.(*ListActiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ReservationClient is the client stub. Every call uses the JSON codec and
// maps status errors back to pkg/types errors.
type ReservationClient struct {
	cc grpc.ClientConnInterface
}

// NewReservationClient wraps cc.
func NewReservationClient(cc grpc.ClientConnInterface) *ReservationClient {
	return &ReservationClient{cc: cc}
}

func (c *ReservationClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return FromStatus(c.cc.Invoke(ctx, method, in, out, opts...))
}

func (c *ReservationClient) Acquire(ctx context.Context, in *AcquireRequest, opts ...grpc.CallOption) (*AcquireResponse, error) {
	out := new(AcquireResponse)
	if err := c.invoke(ctx, methodAcquire, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*ReleaseResponse, error) {
	out := new(ReleaseResponse)
	if err := c.invoke(ctx, methodRelease, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) CheckActive(ctx context.Context, in *CheckActiveRequest, opts ...grpc.CallOption) (*CheckActiveResponse, error) {
	out := new(CheckActiveResponse)
	if err := c.invoke(ctx, methodCheckActive, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ReservationClient) ListActive(ctx context.Context, in *ListActiveRequest, opts ...grpc.CallOption) (*ListActiveResponse, error) {
	out := new(ListActiveResponse)
	if err := c.invoke(ctx, methodListActive, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
