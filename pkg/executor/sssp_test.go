package executor_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/executor"
	"github.com/vertexmesh/corestep/pkg/serverdata"
	"github.com/vertexmesh/corestep/pkg/transport"
)

const infiniteDistance = int64(1) << 62

func encodeTestDistance(d int64) []byte { return []byte(fmt.Sprintf("%d", d)) }

func decodeTestDistance(b []byte) int64 {
	var d int64
	_, _ = fmt.Sscanf(string(b), "%d", &d)
	return d
}

// TestSSSPFromSourceProducesExactDistances runs the literal graph
// {1->2 (w=1), 2->3 (w=1), 1->3 (w=5)} from source 1 end to end over a
// plain BSP Driver and checks the exact per-vertex shortest distances
// and the number of super-steps needed to reach them.
func TestSSSPFromSourceProducesExactDistances(t *testing.T) {
	const worker = corestep.WorkerID(0)
	const task = corestep.TaskID(0)

	lookup := corestep.NewStaticOwnerLookup(task)
	partition := corestep.NewPartition(0)

	v1 := corestep.NewVertex(corestep.Int64VertexID(1), int64(0))
	v2 := corestep.NewVertex(corestep.Int64VertexID(2), infiniteDistance)
	v3 := corestep.NewVertex(corestep.Int64VertexID(3), infiniteDistance)
	v2.VoteToHalt()
	v3.VoteToHalt()

	v1.AddEdge(corestep.Int64VertexID(2), int64(1))
	v1.AddEdge(corestep.Int64VertexID(3), int64(5))
	v2.AddEdge(corestep.Int64VertexID(3), int64(1))

	for _, v := range []*corestep.Vertex{v1, v2, v3} {
		partition.AddVertex(v)
		lookup.Assign(v.ID(), corestep.PartitionOwner{PartitionID: 0, WorkerID: worker, TaskID: task})
	}

	typeStore := corestep.NewVertexTypeStore()
	typeStore.Populate([]*corestep.Partition{partition}, lookup)

	config := corestep.DefaultAsyncConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	sd := serverdata.New(config)
	tp := transport.NewLocalTransport()
	tp.Register(worker, &relayHandler{sd: sd})

	compute := func(cc *executor.ComputeContext) error {
		best, _ := cc.Vertex.Value().(int64)
		isSource := cc.Vertex.ID().String() == "1"
		improved := isSource
		for _, msg := range cc.Messages {
			if d := decodeTestDistance(msg); d < best {
				best = d
				improved = true
			}
		}
		if !improved {
			cc.Vertex.VoteToHalt()
			return nil
		}
		cc.Vertex.SetValue(best)
		for _, e := range cc.Vertex.Edges() {
			w, _ := e.Value().(int64)
			if err := cc.SendMessageTo(e.DstID(), encodeTestDistance(best+w)); err != nil {
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

	var supersteps int
	driver := executor.NewDriver(exec, []*corestep.Partition{partition}, executor.DriverCallbacks{
		PostStep: func(ctx context.Context, _ executor.PartitionStats) error {
			supersteps++
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

	sender := workerMessageSenderFunc(func(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
		return tp.SendWorkerMessages(ctx, dest, batches)
	})

	if _, err := driver.Run(context.Background(), nil, nil, sender, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := v1.Value().(int64); got != 0 {
		t.Errorf("distance(1) = %d, want 0", got)
	}
	if got := v2.Value().(int64); got != 1 {
		t.Errorf("distance(2) = %d, want 1", got)
	}
	if got := v3.Value().(int64); got != 2 {
		t.Errorf("distance(3) = %d, want 2", got)
	}
	if supersteps != 3 {
		t.Errorf("supersteps = %d, want 3 (0: source relaxes, 1: vertex 2 settles, 2: vertex 3 settles via 2)", supersteps)
	}
	if !v1.Halted() || !v2.Halted() || !v3.Halted() {
		t.Errorf("expected every vertex halted at fixpoint")
	}
}
