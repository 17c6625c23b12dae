package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the cachefs grpc service.
const ServiceName = "icecanefs.CacheFS"

// Full method names, as used by grpc.ClientConn.Invoke.
const (
	OpenMethod       = "/" + ServiceName + "/Open"
	CloseMethod      = "/" + ServiceName + "/Close"
	ReadMethod       = "/" + ServiceName + "/Read"
	PrintCacheMethod = "/" + ServiceName + "/PrintCache"
	PrintStatsMethod = "/" + ServiceName + "/PrintStats"
	StatsMethod      = "/" + ServiceName + "/Stats"
)

// Field names of the Read request and the Stats response.
const (
	HandleField    = "handle"
	CountField     = "count"
	OffsetField    = "offset"
	HitsField      = "hits"
	MissesField    = "misses"
	ResidentField  = "resident"
	CapacityField  = "capacity"
	BlockSizeField = "blockSize"
)

// CacheFSService is the server API of the cachefs service.
// The messages are protobuf well-known types so no generated code is needed.
type CacheFSService interface {
	// Open opens the path in the value and returns the logical handle.
	Open(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)

	// Close closes the handle in the value.
	Close(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)

	// Read reads count bytes at offset from handle. All three are number fields of the struct.
	Read(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)

	// PrintCache appends the cache state to the log file in the value.
	PrintCache(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)

	// PrintStats appends the hit and miss counters to the log file in the value.
	PrintStats(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)

	// Stats returns the counters of the cache.
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterCacheFSService registers the service implementation with the grpc server.
func RegisterCacheFSService(s *grpc.Server, srv CacheFSService) {
	s.RegisterService(&cacheFSServiceDesc, srv)
}

var cacheFSServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CacheFSService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Open",
			Handler:    openHandler,
		},
		{
			MethodName: "Close",
			Handler:    closeHandler,
		},
		{
			MethodName: "Read",
			Handler:    readHandler,
		},
		{
			MethodName: "PrintCache",
			Handler:    printCacheHandler,
		},
		{
			MethodName: "PrintStats",
			Handler:    printStatsHandler,
		},
		{
			MethodName: "Stats",
			Handler:    statsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "icecanefs/cachefs.proto",
}

func openHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).Open(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: OpenMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).Open(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func closeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).Close(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CloseMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).Close(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ReadMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).Read(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func printCacheHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).PrintCache(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PrintCacheMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).PrintCache(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func printStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).PrintStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PrintStatsMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).PrintStats(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CacheFSService).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatsMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CacheFSService).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
