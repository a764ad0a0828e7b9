package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
)

// GRPCClient is a grpc-backed Transport: every Send call dispatches one
// Dispatch RPC in its own goroutine, and WaitAllRequests blocks until
// every dispatched call has returned.
type GRPCClient struct {
	inFlight

	conn *grpc.ClientConn
}

// Dial connects to target and returns a ready GRPCClient.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, corestep.NewError(corestep.KindStoreIO, "dialing transport peer failed", err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) invoke(ctx context.Context, f frame) error {
	payload, err := encodeFrame(f)
	if err != nil {
		return corestep.NewError(corestep.KindStoreIO, "encoding transport frame failed", err)
	}
	in := &wrapperspb.BytesValue{Value: payload}
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, "/corestep.Transport/Dispatch", in, out); err != nil {
		return corestep.NewError(corestep.KindStoreIO, "transport RPC failed", err)
	}
	return nil
}

func (c *GRPCClient) SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
	c.dispatch(func() error { return c.invoke(ctx, frame{Kind: frameWorkerMessages, Batches: batches}) })
	return nil
}

func (c *GRPCClient) SendToken(ctx context.Context, dest corestep.WorkerID) error {
	c.dispatch(func() error { return c.invoke(ctx, frame{Kind: frameTokenRequest}) })
	return nil
}

func (c *GRPCClient) SendFork(ctx context.Context, dest corestep.WorkerID) error {
	c.dispatch(func() error { return c.invoke(ctx, frame{Kind: frameFork}) })
	return nil
}

func (c *GRPCClient) SendGlobalToken(ctx context.Context, dest corestep.WorkerID, generation uint64) error {
	c.dispatch(func() error { return c.invoke(ctx, frame{Kind: frameGlobalToken, Generation: generation}) })
	return nil
}

func (c *GRPCClient) SendPartitionToken(ctx context.Context, dest corestep.WorkerID, partitionID corestep.PartitionID, generation uint64) error {
	c.dispatch(func() error {
		return c.invoke(ctx, frame{Kind: framePartitionToken, PartitionID: partitionID, Generation: generation})
	})
	return nil
}

func (c *GRPCClient) WaitAllRequests(ctx context.Context) error {
	return c.wait(ctx)
}
