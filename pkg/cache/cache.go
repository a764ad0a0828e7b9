// Package cache implements the per-compute-thread outgoing message
// batching described in spec.md §4.2: messages destined for a remote
// worker accumulate in a per-worker bucket until either a size threshold
// is crossed or the caller explicitly flushes, at which point they are
// handed to the transport as a single SendWorkerMessages request. A
// destination that resolves to this worker's own task under an
// asynchronous discipline bypasses batching entirely.
package cache

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/message"
)

// PartitionBatch is the set of messages destined for one partition,
// flushed together as part of a single worker-targeted request.
type PartitionBatch struct {
	PartitionID corestep.PartitionID
	Entries     []message.Entry
}

// WorkerMessageSender is the collaborator contract RequestProcessor uses
// to ship a flushed batch across the wire (spec.md §6's
// SendWorkerMessages request).
type WorkerMessageSender interface {
	SendWorkerMessages(ctx context.Context, dest corestep.WorkerID, batches []PartitionBatch) error
}

// LocalDeliverer appends directly into a local MessageStore, bypassing
// the transport for same-task traffic (spec.md §4.2's local short
// circuit).
type LocalDeliverer interface {
	AddPartitionMessage(partitionID corestep.PartitionID, destID corestep.VertexID, msg []byte)
}

// workerBucket accumulates entries destined for one worker and tracks
// the running payload size, both overall and per destination vertex, so
// a size-based flush needs no full scan and a single vertex's backlog
// can be rejected without touching anyone else's.
type workerBucket struct {
	mu          sync.Mutex
	batches     map[corestep.PartitionID][]message.Entry
	order       []corestep.PartitionID
	bytes       int
	vertexBytes map[string]int
}

func newWorkerBucket(slack int) *workerBucket {
	return &workerBucket{
		batches:     make(map[corestep.PartitionID][]message.Entry, slack),
		vertexBytes: make(map[string]int, slack),
	}
}

// add appends e to the bucket and returns the worker's new running total.
// If enforceVertexLimit is set and admitting e would push destID's own
// accumulated bytes past vertexLimit, the bucket is left untouched and ok
// is false: the caller rejects the message without corrupting any other
// vertex's buffer (spec.md §4.2, §7).
func (b *workerBucket) add(partitionID corestep.PartitionID, e message.Entry, enforceVertexLimit bool, vertexLimit int) (total int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := string(e.DestID.Bytes())
	if enforceVertexLimit && b.vertexBytes[key]+len(e.Encoded) > vertexLimit {
		return b.bytes, false
	}

	if _, exists := b.batches[partitionID]; !exists {
		b.order = append(b.order, partitionID)
	}
	b.batches[partitionID] = append(b.batches[partitionID], e)
	b.bytes += len(e.Encoded)
	b.vertexBytes[key] += len(e.Encoded)
	return b.bytes, true
}

func (b *workerBucket) drain() []PartitionBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.order) == 0 {
		return nil
	}
	out := make([]PartitionBatch, 0, len(b.order))
	for _, pid := range b.order {
		out = append(out, PartitionBatch{PartitionID: pid, Entries: b.batches[pid]})
	}
	b.batches = make(map[corestep.PartitionID][]message.Entry, len(b.order))
	b.order = nil
	b.bytes = 0
	b.vertexBytes = make(map[string]int, len(b.vertexBytes))
	return out
}

func (b *workerBucket) empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order) == 0
}

// RequestProcessor owns one MessageCache per compute thread and routes a
// compute thread's outgoing messages to either the local short circuit
// or a per-worker batching bucket, flushing a bucket once it crosses
// Config.MaxMessageBytesPerWorker (spec.md §4.2).
type RequestProcessor struct {
	config corestep.AsyncConfig
	lookup corestep.OwnerLookup
	sender WorkerMessageSender
	local  LocalDeliverer

	mu      sync.RWMutex
	buckets map[corestep.WorkerID]*workerBucket

	messagesSent     *atomic.Int64
	messageBytesSent *atomic.Int64
}

// NewRequestProcessor builds a RequestProcessor for one compute thread.
func NewRequestProcessor(config corestep.AsyncConfig, lookup corestep.OwnerLookup, sender WorkerMessageSender, local LocalDeliverer) *RequestProcessor {
	return &RequestProcessor{
		config:           config,
		lookup:           lookup,
		sender:           sender,
		local:            local,
		buckets:          make(map[corestep.WorkerID]*workerBucket),
		messagesSent:     atomic.NewInt64(0),
		messageBytesSent: atomic.NewInt64(0),
	}
}

func (p *RequestProcessor) bucketFor(workerID corestep.WorkerID) *workerBucket {
	p.mu.RLock()
	b, ok := p.buckets[workerID]
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok = p.buckets[workerID]; ok {
		return b
	}
	b = newWorkerBucket(p.config.InitialCacheSlack)
	p.buckets[workerID] = b
	return b
}

// Send routes one encoded message to destID, resolved through the
// configured OwnerLookup. A message larger than the whole flush
// threshold can never be batched safely and is rejected with
// KindPayloadTooLarge (spec.md §7).
func (p *RequestProcessor) Send(ctx context.Context, destID corestep.VertexID, encoded []byte) error {
	if len(encoded) > p.config.MaxMessageBytesPerWorker {
		return corestep.NewError(corestep.KindPayloadTooLarge, "message exceeds MaxMessageBytesPerWorker", nil)
	}

	owner, ok := p.lookup.Owner(destID)
	if !ok {
		return corestep.NewError(corestep.KindStoreIO, "no known owner for destination vertex", nil)
	}

	if p.config.IsAsync && owner.TaskID == p.lookup.LocalTaskID() {
		p.local.AddPartitionMessage(owner.PartitionID, destID, encoded)
		p.messagesSent.Inc()
		p.messageBytesSent.Add(int64(len(encoded)))
		return nil
	}

	bucket := p.bucketFor(owner.WorkerID)
	size, ok := bucket.add(owner.PartitionID, message.Entry{DestID: destID, Encoded: encoded}, !p.config.EnableBigBuffer, p.config.MaxMessageBytesPerVertex)
	if !ok {
		return corestep.NewError(corestep.KindPayloadTooLarge, "destination vertex's accumulated buffer exceeds MaxMessageBytesPerVertex; enable EnableBigBuffer to lift this", nil)
	}
	p.messagesSent.Inc()
	p.messageBytesSent.Add(int64(len(encoded)))

	if size >= p.config.MaxMessageBytesPerWorker {
		return p.flushWorker(ctx, owner.WorkerID, bucket)
	}
	return nil
}

func (p *RequestProcessor) flushWorker(ctx context.Context, workerID corestep.WorkerID, bucket *workerBucket) error {
	batches := bucket.drain()
	if len(batches) == 0 {
		return nil
	}
	if err := p.sender.SendWorkerMessages(ctx, workerID, batches); err != nil {
		return corestep.NewError(corestep.KindStoreIO, "sending worker messages failed", err)
	}
	return nil
}

// FlushAll flushes every non-empty bucket regardless of size, used at
// super-step boundaries to guarantee in-flight messages reach their
// destination before the barrier completes (spec.md §4.2, §5).
func (p *RequestProcessor) FlushAll(ctx context.Context) error {
	p.mu.RLock()
	workers := make([]corestep.WorkerID, 0, len(p.buckets))
	buckets := make([]*workerBucket, 0, len(p.buckets))
	for w, b := range p.buckets {
		workers = append(workers, w)
		buckets = append(buckets, b)
	}
	p.mu.RUnlock()

	var firstErr error
	for i, b := range buckets {
		if b.empty() {
			continue
		}
		if err := p.flushWorker(ctx, workers[i], b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MessagesSent returns the running count of messages accepted by Send,
// including those delivered through the local short circuit.
func (p *RequestProcessor) MessagesSent() int64 { return p.messagesSent.Load() }

// MessageBytesSent returns the running total of encoded payload bytes
// accepted by Send.
func (p *RequestProcessor) MessageBytesSent() int64 { return p.messageBytesSent.Load() }
