package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DispatchService is the single-method grpc server interface
// ServiceDesc below requires an implementation to satisfy, standing in
// for what protoc-gen-go-grpc would otherwise generate from a .proto
// file.
type DispatchService interface {
	Dispatch(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

type dispatchServer struct {
	handler Handler
}

func (s *dispatchServer) Dispatch(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	f, err := decodeFrame(req.GetValue())
	if err != nil {
		return nil, err
	}

	switch f.Kind {
	case frameWorkerMessages:
		err = s.handler.HandleWorkerMessages(ctx, f.Batches)
	case frameTokenRequest:
		err = s.handler.HandleTokenRequest(ctx)
	case frameFork:
		err = s.handler.HandleFork(ctx)
	case frameGlobalToken:
		err = s.handler.HandleGlobalToken(ctx, f.Generation)
	case framePartitionToken:
		err = s.handler.HandlePartitionToken(ctx, f.PartitionID, f.Generation)
	}
	return &wrapperspb.BytesValue{}, err
}

func dispatchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DispatchService).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/corestep.Transport/Dispatch",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DispatchService).Dispatch(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the hand-registered grpc service descriptor: one unary
// method, Dispatch, carrying every fire-and-forget request kind as a
// gob-encoded frame.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "corestep.Transport",
	HandlerType: (*DispatchService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "corestep/transport.proto",
}

// RegisterServer attaches handler to gs under ServiceDesc.
func RegisterServer(gs *grpc.Server, handler Handler) {
	gs.RegisterService(&ServiceDesc, &dispatchServer{handler: handler})
}
