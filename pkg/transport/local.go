package transport

import (
	"context"
	"sync"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
)

// LocalTransport routes every request directly to an in-process Handler,
// used by tests and by single-process simulations of a multi-worker
// run.
type LocalTransport struct {
	inFlight

	mu       sync.RWMutex
	handlers map[corestep.WorkerID]Handler
}

// NewLocalTransport returns a LocalTransport with no registered
// handlers.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{handlers: make(map[corestep.WorkerID]Handler)}
}

// Register attaches handler as the destination for worker.
func (t *LocalTransport) Register(worker corestep.WorkerID, handler Handler) {
	t.mu.Lock()
	t.handlers[worker] = handler
	t.mu.Unlock()
}

func (t *LocalTransport) handlerFor(worker corestep.WorkerID) (Handler, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handlers[worker]
	if !ok {
		return nil, corestep.NewError(corestep.KindStoreIO, "no handler registered for worker", nil)
	}
	return h, nil
}

func (t *LocalTransport) SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []cache.PartitionBatch) error {
	h, err := t.handlerFor(dest)
	if err != nil {
		return err
	}
	t.dispatch(func() error { return h.HandleWorkerMessages(ctx, batches) })
	return nil
}

func (t *LocalTransport) SendToken(ctx context.Context, dest corestep.WorkerID) error {
	h, err := t.handlerFor(dest)
	if err != nil {
		return err
	}
	t.dispatch(func() error { return h.HandleTokenRequest(ctx) })
	return nil
}

func (t *LocalTransport) SendFork(ctx context.Context, dest corestep.WorkerID) error {
	h, err := t.handlerFor(dest)
	if err != nil {
		return err
	}
	t.dispatch(func() error { return h.HandleFork(ctx) })
	return nil
}

func (t *LocalTransport) SendGlobalToken(ctx context.Context, dest corestep.WorkerID, generation uint64) error {
	h, err := t.handlerFor(dest)
	if err != nil {
		return err
	}
	t.dispatch(func() error { return h.HandleGlobalToken(ctx, generation) })
	return nil
}

func (t *LocalTransport) SendPartitionToken(ctx context.Context, dest corestep.WorkerID, partitionID corestep.PartitionID, generation uint64) error {
	h, err := t.handlerFor(dest)
	if err != nil {
		return err
	}
	t.dispatch(func() error { return h.HandlePartitionToken(ctx, partitionID, generation) })
	return nil
}

func (t *LocalTransport) WaitAllRequests(ctx context.Context) error {
	return t.wait(ctx)
}
