package executor_test

import (
	"context"
	"testing"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/executor"
	"github.com/vertexmesh/corestep/pkg/message"
)

func TestDriverRunsUntilAllVerticesHalt(t *testing.T) {
	store := message.New()
	partition := corestep.NewPartition(0)
	v := corestep.NewVertex(corestep.Int64VertexID(1), 0)
	partition.AddVertex(v)

	lookup := buildLookup(map[int64]corestep.PartitionID{1: 0}, 1)
	typeStore := corestep.NewVertexTypeStore()
	typeStore.Populate([]*corestep.Partition{partition}, lookup)

	runs := 0
	exec := executor.New(executor.Executor{
		Config: corestep.DefaultAsyncConfig(),
		Compute: func(cc *executor.ComputeContext) error {
			runs++
			if runs >= 3 {
				cc.Vertex.VoteToHalt()
			}
			return nil
		},
		Lookup:        lookup,
		TypeStore:     typeStore,
		NumThreads:    1,
		LocalWorkerID: 1,
	})

	driver := executor.NewDriver(exec, []*corestep.Partition{partition}, executor.DriverCallbacks{})
	_, err := driver.Run(context.Background(), store, nil, noopSender{}, localOnlyDeliverer{store: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runs != 3 {
		t.Fatalf("expected exactly 3 compute runs before halting, got %d", runs)
	}
	if !v.Halted() {
		t.Fatal("expected vertex to be halted once the driver stops")
	}
}
