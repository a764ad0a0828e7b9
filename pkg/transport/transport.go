// Package transport implements the worker-to-worker collaborator named
// in spec.md §6: every request is fire-and-forget, and a super-step
// boundary calls WaitAllRequests as a barrier before it can be sure
// every message sent this super-step has actually been delivered.
//
// Two implementations are provided: LocalTransport, an in-process
// router used by tests and single-process multi-worker simulations, and
// a grpc-backed Transport for real multi-process deployments. The grpc
// implementation hand-registers a grpc.ServiceDesc with a single unary
// method instead of using protoc-generated stubs, since no .proto
// toolchain is available in this environment; requests are carried as
// gob-encoded frames wrapped in the well-known wrapperspb.BytesValue
// message so the wire format still round-trips through a real protobuf
// codec.
package transport

import (
	"context"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
)

// Transport is the fire-and-forget send / barrier-wait contract.
type Transport interface {
	SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error
	SendToken(ctx context.Context, dest corestep.WorkerID) error
	SendFork(ctx context.Context, dest corestep.WorkerID) error
	SendGlobalToken(ctx context.Context, dest corestep.WorkerID, generation uint64) error
	SendPartitionToken(ctx context.Context, dest corestep.WorkerID, partitionID corestep.PartitionID, generation uint64) error
	WaitAllRequests(ctx context.Context) error
}

// Handler processes inbound requests delivered by a Transport
// implementation, on whichever worker is the destination.
type Handler interface {
	HandleWorkerMessages(ctx context.Context, batches []cache.PartitionBatch) error
	HandleTokenRequest(ctx context.Context) error
	HandleFork(ctx context.Context) error
	HandleGlobalToken(ctx context.Context, generation uint64) error
	HandlePartitionToken(ctx context.Context, partitionID corestep.PartitionID, generation uint64) error
}

var (
	_ Transport = (*LocalTransport)(nil)
	_ Transport = (*GRPCClient)(nil)
)
