package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/transport"
)

type countingHandler struct {
	mu                sync.Mutex
	workerMessages    int
	tokenRequests     int
	forksReceived     int
	globalGenerations []uint64
}

func (h *countingHandler) HandleWorkerMessages(_ context.Context, _ []cache.PartitionBatch) error {
	h.mu.Lock()
	h.workerMessages++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) HandleTokenRequest(_ context.Context) error {
	h.mu.Lock()
	h.tokenRequests++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) HandleFork(_ context.Context) error {
	h.mu.Lock()
	h.forksReceived++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) HandleGlobalToken(_ context.Context, generation uint64) error {
	h.mu.Lock()
	h.globalGenerations = append(h.globalGenerations, generation)
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) HandlePartitionToken(_ context.Context, _ corestep.PartitionID, _ uint64) error {
	return nil
}

func TestLocalTransportDeliversAndBarrierWaits(t *testing.T) {
	tr := transport.NewLocalTransport()
	h := &countingHandler{}
	tr.Register(2, h)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := tr.SendWorkerMessages(ctx, 2, []cache.PartitionBatch{{PartitionID: 0}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.SendToken(ctx, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.SendGlobalToken(ctx, 2, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tr.WaitAllRequests(ctx); err != nil {
		t.Fatalf("unexpected error from WaitAllRequests: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.workerMessages != 1 || h.tokenRequests != 1 || len(h.globalGenerations) != 1 {
		t.Fatalf("unexpected delivery counts: %+v", h)
	}
	if h.globalGenerations[0] != 7 {
		t.Fatalf("expected generation 7, got %d", h.globalGenerations[0])
	}
}

func TestLocalTransportErrorsOnUnregisteredWorker(t *testing.T) {
	tr := transport.NewLocalTransport()
	err := tr.SendFork(context.Background(), 99)
	if err == nil {
		t.Fatal("expected an error for an unregistered worker")
	}
}
