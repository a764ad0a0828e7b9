package executor_test

import (
	"context"
	"testing"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/executor"
	"github.com/vertexmesh/corestep/pkg/serverdata"
	"github.com/vertexmesh/corestep/pkg/transport"
)

// relayHandler routes SendWorkerMessages straight into ServerData's
// incoming store, the same wiring cmd/workerd uses for a single-worker
// run.
type relayHandler struct {
	sd *serverdata.ServerData
}

func (h *relayHandler) HandleWorkerMessages(_ context.Context, batches []cache.PartitionBatch) error {
	incoming := h.sd.IncomingStore()
	for _, b := range batches {
		incoming.AddPartitionMessages(b.PartitionID, b.Entries)
	}
	return nil
}

func (h *relayHandler) HandleTokenRequest(context.Context) error { return nil }
func (h *relayHandler) HandleFork(context.Context) error         { return nil }
func (h *relayHandler) HandleGlobalToken(context.Context, uint64) error { return nil }
func (h *relayHandler) HandlePartitionToken(context.Context, corestep.PartitionID, uint64) error {
	return nil
}

// TestDriverRotatesServerDataAcrossTheWire exercises the path a plain
// BSP run actually takes: RequestProcessor.Send's local short circuit
// never fires under BSP (cache.go only takes it under IsAsync), so a
// same-worker message still goes out through sender.SendWorkerMessages
// and back in through a transport.Handler. This checks that Driver's
// ServerData rotation and the PostStep WaitAllRequests barrier line up
// so a message sent in super-step 0 is visible to its destination in
// super-step 1, and that a vertex halted from the start wakes up when a
// message finally arrives for it.
func TestDriverRotatesServerDataAcrossTheWire(t *testing.T) {
	const worker = corestep.WorkerID(0)
	const task = corestep.TaskID(0)

	lookup := corestep.NewStaticOwnerLookup(task)
	partition := corestep.NewPartition(0)

	v1 := corestep.NewVertex(corestep.Int64VertexID(1), nil)
	v2 := corestep.NewVertex(corestep.Int64VertexID(2), nil)
	v2.VoteToHalt()
	partition.AddVertex(v1)
	partition.AddVertex(v2)
	lookup.Assign(corestep.Int64VertexID(1), corestep.PartitionOwner{PartitionID: 0, WorkerID: worker, TaskID: task})
	lookup.Assign(corestep.Int64VertexID(2), corestep.PartitionOwner{PartitionID: 0, WorkerID: worker, TaskID: task})

	typeStore := corestep.NewVertexTypeStore()
	typeStore.Populate([]*corestep.Partition{partition}, lookup)

	config := corestep.DefaultAsyncConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	sd := serverdata.New(config)
	tp := transport.NewLocalTransport()
	tp.Register(worker, &relayHandler{sd: sd})

	sent := false
	compute := func(cc *executor.ComputeContext) error {
		if cc.Vertex.ID().String() == "1" && !sent {
			sent = true
			if err := cc.SendMessageTo(corestep.Int64VertexID(2), []byte("hello")); err != nil {
				return err
			}
		}
		cc.Vertex.VoteToHalt()
		return nil
	}

	exec := executor.New(executor.Executor{
		Config:        config,
		Compute:       compute,
		Lookup:        lookup,
		TypeStore:     typeStore,
		NumThreads:    1,
		LocalWorkerID: worker,
	})

	var rounds int
	driver := executor.NewDriver(exec, []*corestep.Partition{partition}, executor.DriverCallbacks{
		PostStep: func(ctx context.Context, _ executor.PartitionStats) error {
			rounds++
			return tp.WaitAllRequests(ctx)
		},
		KeepRunning: func(_ context.Context, partitions []*corestep.Partition, _ executor.PartitionStats) (bool, error) {
			for _, p := range partitions {
				if !p.AllHalted() {
					return true, nil
				}
			}
			return sd.IncomingStore().HasMessagesForPartition(0), nil
		},
	})
	driver.ServerData = sd

	senderAdapter := workerMessageSenderFunc(func(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
		return tp.SendWorkerMessages(ctx, dest, batches)
	})

	stats, err := driver.Run(context.Background(), nil, nil, senderAdapter, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !v1.Halted() || !v2.Halted() {
		t.Fatalf("expected both vertices halted, v1=%v v2=%v", v1.Halted(), v2.Halted())
	}
	if rounds != 2 {
		t.Fatalf("rounds = %d, want 2 (v2 must wake up a super-step after v1 sends)", rounds)
	}
	if stats.Halted == 0 {
		t.Fatalf("expected the final super-step's stats to report halted vertices")
	}
}

type workerMessageSenderFunc func(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error

func (f workerMessageSenderFunc) SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
	return f(ctx, dest, batches)
}
