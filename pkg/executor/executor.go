// Package executor implements PartitionExecutor, the pool of compute
// threads that drains a worker's partition queue each logical
// super-step, applying whichever serialisability discipline the run is
// configured with before a boundary vertex computes (spec.md §4.4,
// §4.5).
package executor

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/message"
	"github.com/vertexmesh/corestep/pkg/philosophers"
)

// TokenGate is the collaborator an Executor consults under the token
// serialisability discipline; *token.GlobalToken satisfies it.
type TokenGate interface {
	HasToken() bool
}

// Executor runs NumThreads concurrent compute threads over a shared
// partition queue, one partition owned exclusively by whichever thread
// dequeues it for the duration of its processing (spec.md §3, §4.4).
type Executor struct {
	Config        corestep.AsyncConfig
	Compute       ComputeFunc
	Lookup        corestep.OwnerLookup
	TypeStore     *corestep.VertexTypeStore
	NumThreads    int
	LocalWorkerID corestep.WorkerID

	// GlobalToken gates REMOTE_BOUNDARY (and, together with
	// PartitionTokens, MIXED_BOUNDARY) vertex compute under SerialToken.
	// May be nil if that discipline is not in use.
	GlobalToken TokenGate

	// PartitionTokens gates LOCAL_BOUNDARY (and, together with
	// GlobalToken, MIXED_BOUNDARY) vertex compute under SerialToken, one
	// token per partition this worker runs, keyed by PartitionID
	// (spec.md §4.4, §4.6). May be nil or missing entries if no
	// local-boundary vertex needs gating.
	PartitionTokens map[corestep.PartitionID]TokenGate

	// RequestSend / ForkSend wire philosophers.Table traffic to whatever
	// transport (or in-process short circuit) the caller configured.
	// Required when Config.Serialisability is SerialVertexLock or
	// SerialPartitionLock.
	RequestSend philosophers.RequestSender
	ForkSend    philosophers.ForkSender

	// VertexResolver decides what happens when a message arrives for an
	// id absent from a partition's vertex map: returning (v, true)
	// materialises v into the partition before this super-step computes
	// it; returning (nil, false) leaves the message queued against a
	// vertex that will never exist (the algorithm removed it on purpose
	// and must not resurrect it — spec.md §3, §8 scenario 5). Nil means
	// no lazy creation ever happens.
	VertexResolver func(id corestep.VertexID) (*corestep.Vertex, bool)

	mu             sync.Mutex
	vertexForks    map[string]*philosophers.Table
	partitionForks map[corestep.PartitionID]*philosophers.Table

	logicalSuperstep int
}

// New builds an Executor ready to run RunSuperstep. NumThreads defaults
// to 1 if not positive.
func New(e Executor) *Executor {
	if e.NumThreads <= 0 {
		e.NumThreads = 1
	}
	e.vertexForks = make(map[string]*philosophers.Table)
	e.partitionForks = make(map[corestep.PartitionID]*philosophers.Table)
	return &e
}

// LogicalSuperstep returns the super-step count this Executor is about
// to run (0-indexed).
func (e *Executor) LogicalSuperstep() int { return e.logicalSuperstep }

// RunSuperstep drains partitions across NumThreads compute threads,
// reading each vertex's messages from store (or sourceStore, under
// NeedAllMsgs), sending outgoing traffic through sender / local, and
// returns the aggregate PartitionStats for the super-step. It advances
// the internal logical super-step counter on return.
func (e *Executor) RunSuperstep(ctx context.Context, partitions []*corestep.Partition, store *message.Store, sourceStore *message.SourceStore, sender cache.WorkerMessageSender, local cache.LocalDeliverer) (PartitionStats, error) {
	queue := make(chan *corestep.Partition, len(partitions))
	for _, p := range partitions {
		queue <- p
	}
	close(queue)

	var verticesComputed, halted, messagesSent, messageBytesSent atomic.Int64
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var runErr error

	for i := 0; i < e.NumThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rp := cache.NewRequestProcessor(e.Config, e.Lookup, sender, local)
			for part := range queue {
				stats, err := e.computePartition(ctx, rp, part, store, sourceStore)
				verticesComputed.Add(stats.VerticesComputed)
				halted.Add(stats.Halted)
				if err != nil {
					errMu.Lock()
					runErr = multierror.Append(runErr, err)
					errMu.Unlock()
				}
			}
			if err := rp.FlushAll(ctx); err != nil {
				errMu.Lock()
				runErr = multierror.Append(runErr, err)
				errMu.Unlock()
			}
			messagesSent.Add(rp.MessagesSent())
			messageBytesSent.Add(rp.MessageBytesSent())
		}()
	}
	wg.Wait()

	e.logicalSuperstep++

	return PartitionStats{
		VerticesComputed: verticesComputed.Load(),
		Halted:           halted.Load(),
		MessagesSent:     messagesSent.Load(),
		MessageBytesSent: messageBytesSent.Load(),
	}, runErr
}

func (e *Executor) computePartition(ctx context.Context, rp *cache.RequestProcessor, part *corestep.Partition, store *message.Store, sourceStore *message.SourceStore) (PartitionStats, error) {
	var stats PartitionStats

	e.materializeLazyVertices(part, store, sourceStore)

	if e.Config.Serialisability == corestep.SerialPartitionLock {
		if part.AllHalted() && !e.hasPendingPartitionMessage(part, sourceStore, store) {
			// Every vertex is halted and nothing is waiting for it:
			// record a trivial result without ever acquiring forks
			// (spec.md §4.4 step 2).
			stats.Halted = int64(len(part.Vertices()))
			return stats, nil
		}
		neighbours := e.boundaryWorkersForPartition(part)
		if len(neighbours) > 0 {
			table, err := e.partitionTableFor(part.ID(), neighbours)
			if err != nil {
				return stats, err
			}
			if err := table.AcquireForks(neighbours, e.RequestSend); err != nil {
				return stats, err
			}
			defer func() {
				// Flush before releasing so forks cannot race ahead of
				// the messages sent while they were held (spec.md §5).
				_ = rp.FlushAll(ctx)
				_ = table.ReleaseForks(neighbours, e.ForkSend)
			}()
		}
	}

	for _, v := range part.Vertices() {
		computed, err := e.runVertex(ctx, rp, part, store, sourceStore, v)
		if err != nil {
			return stats, err
		}
		if computed {
			stats.VerticesComputed++
		}
		if v.Halted() {
			stats.Halted++
		}
	}
	return stats, nil
}

func (e *Executor) runVertex(ctx context.Context, rp *cache.RequestProcessor, part *corestep.Partition, store *message.Store, sourceStore *message.SourceStore, v *corestep.Vertex) (bool, error) {
	vtype := e.TypeStore.Type(v.ID())
	boundary := vtype != corestep.Internal

	if boundary && e.Config.Serialisability == corestep.SerialToken {
		if !e.hasRequiredToken(vtype, part.ID()) {
			// The governing token(s) for this boundary type are not
			// held. Wake the vertex if a message has arrived so
			// termination detection does not mistake it for settled,
			// but leave the message undrained and do not compute: the
			// vertex waits for the token before it runs (spec.md §4.4).
			if e.hasPendingMessage(part.ID(), v.ID(), sourceStore, store) && v.Halted() {
				v.WakeUp()
			}
			return false, nil
		}
	}

	var neighbours []corestep.WorkerID
	if boundary && e.Config.Serialisability == corestep.SerialVertexLock {
		neighbours = e.boundaryWorkers(v)
		if len(neighbours) > 0 {
			table, err := e.vertexTableFor(v.ID(), neighbours)
			if err != nil {
				return false, err
			}
			if err := table.AcquireForks(neighbours, e.RequestSend); err != nil {
				return false, err
			}
			defer func() {
				// Flush before releasing so forks cannot race ahead of
				// the messages sent while they were held (spec.md §5).
				_ = rp.FlushAll(ctx)
				_ = table.ReleaseForks(neighbours, e.ForkSend)
			}()
		}
	}

	var msgs [][]byte
	if e.Config.NeedAllMsgs {
		msgs = sourceStore.GetVertexMessagesWithoutSource(part.ID(), v.ID())
	} else {
		msgs = store.RemoveVertexMessages(part.ID(), v.ID())
	}
	if e.Config.HideMessages(e.logicalSuperstep) {
		msgs = nil
	}

	if len(msgs) > 0 && v.Halted() {
		v.WakeUp()
	}
	if v.Halted() {
		return false, nil
	}

	cc := &ComputeContext{Vertex: v, Messages: msgs, ctx: ctx, rp: rp}
	if err := e.Compute(cc); err != nil {
		return false, err
	}
	if e.Config.ReachedMaxSupersteps(e.logicalSuperstep) {
		v.VoteToHalt()
	}
	return true, nil
}

// hasRequiredToken reports whether the token(s) governing vtype under
// SerialToken are currently held: the global token for REMOTE_BOUNDARY,
// this partition's local token for LOCAL_BOUNDARY, and both for
// MIXED_BOUNDARY (spec.md §4.4).
func (e *Executor) hasRequiredToken(vtype corestep.VertexType, partitionID corestep.PartitionID) bool {
	switch vtype {
	case corestep.LocalBoundary:
		return e.hasLocalToken(partitionID)
	case corestep.RemoteBoundary:
		return e.GlobalToken != nil && e.GlobalToken.HasToken()
	case corestep.MixedBoundary:
		return e.GlobalToken != nil && e.GlobalToken.HasToken() && e.hasLocalToken(partitionID)
	default:
		return true
	}
}

func (e *Executor) hasLocalToken(partitionID corestep.PartitionID) bool {
	gate, ok := e.PartitionTokens[partitionID]
	return ok && gate != nil && gate.HasToken()
}

// hasPendingPartitionMessage peeks whether any vertex in part has a
// message waiting, without draining anything, so a fully halted
// partition can be told apart from one that merely hasn't been woken
// up yet.
func (e *Executor) hasPendingPartitionMessage(part *corestep.Partition, sourceStore *message.SourceStore, store *message.Store) bool {
	if e.Config.NeedAllMsgs {
		if sourceStore == nil {
			return false
		}
		for _, v := range part.Vertices() {
			if sourceStore.HasMessagesForVertex(part.ID(), v.ID()) {
				return true
			}
		}
		return false
	}
	if store == nil {
		return false
	}
	return store.HasMessagesForPartition(part.ID())
}

// hasPendingMessage peeks (without draining) whether a message is
// already queued for id, so a boundary vertex gated out by a missing
// token can still be woken up without losing its place in the queue.
func (e *Executor) hasPendingMessage(partitionID corestep.PartitionID, id corestep.VertexID, sourceStore *message.SourceStore, store *message.Store) bool {
	if e.Config.NeedAllMsgs {
		if sourceStore == nil {
			return false
		}
		return sourceStore.HasMessagesForVertex(partitionID, id)
	}
	if store == nil {
		return false
	}
	return store.HasMessagesForVertex(partitionID, id)
}

// materializeLazyVertices resolves every destination with a buffered
// message but no entry in part's vertex map, consulting VertexResolver
// for each. Runs once per partition per super-step, before the
// partition-lock skip check and the main compute loop, so a lazily
// created vertex is visible to both (spec.md §3).
func (e *Executor) materializeLazyVertices(part *corestep.Partition, store *message.Store, sourceStore *message.SourceStore) {
	if e.VertexResolver == nil {
		return
	}

	var destIDs []corestep.VertexID
	if e.Config.NeedAllMsgs {
		if sourceStore != nil {
			destIDs = sourceStore.DestinationsWithMessages(part.ID())
		}
	} else if store != nil {
		destIDs = store.DestinationsWithMessages(part.ID())
	}

	for _, id := range destIDs {
		if part.Vertex(id) != nil {
			continue
		}
		v, ok := e.VertexResolver(id)
		if !ok || v == nil {
			continue
		}
		part.AddVertex(v)
	}
}

func (e *Executor) boundaryWorkers(v *corestep.Vertex) []corestep.WorkerID {
	seen := make(map[corestep.WorkerID]bool)
	var out []corestep.WorkerID
	for _, edge := range v.Edges() {
		owner, ok := e.Lookup.Owner(edge.DstID())
		if !ok || seen[owner.WorkerID] {
			continue
		}
		seen[owner.WorkerID] = true
		out = append(out, owner.WorkerID)
	}
	return out
}

func (e *Executor) boundaryWorkersForPartition(part *corestep.Partition) []corestep.WorkerID {
	seen := make(map[corestep.WorkerID]bool)
	var out []corestep.WorkerID
	for _, v := range part.Vertices() {
		for _, w := range e.boundaryWorkers(v) {
			if seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

func (e *Executor) vertexTableFor(id corestep.VertexID, neighbours []corestep.WorkerID) (*philosophers.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := id.String()
	if t, ok := e.vertexForks[key]; ok {
		return t, nil
	}
	t, err := philosophers.New(e.LocalWorkerID, neighbours)
	if err != nil {
		return nil, err
	}
	e.vertexForks[key] = t
	return t, nil
}

func (e *Executor) partitionTableFor(id corestep.PartitionID, neighbours []corestep.WorkerID) (*philosophers.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.partitionForks[id]; ok {
		return t, nil
	}
	t, err := philosophers.New(e.LocalWorkerID, neighbours)
	if err != nil {
		return nil, err
	}
	e.partitionForks[id] = t
	return t, nil
}
