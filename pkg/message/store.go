// Package message implements the per-partition, per-destination-vertex
// message store described in spec.md §4.1: an append-only buffer of
// encoded messages with destructive drain and presence queries.
package message

import (
	"sync"

	"github.com/vertexmesh/corestep/pkg/corestep"
)

// Entry pairs a destination vertex id with its already-encoded message
// payload, used by batch appends so the store can prefer a raw-byte copy
// over a deserialise/reserialise round trip (spec.md §4.1).
type Entry struct {
	DestID  corestep.VertexID
	Encoded []byte
}

// vertexQueue is the append-only, destructively-readable buffer backing
// a single (partitionId, destId) pair. Append is guarded by the queue's
// own mutex so concurrent senders targeting the same vertex never
// interleave a partial write; this is the "queue's own monitor" referred
// to in spec.md §5.
type vertexQueue struct {
	mu   sync.Mutex
	id   corestep.VertexID
	msgs [][]byte
}

func (q *vertexQueue) append(msg []byte) {
	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	q.mu.Unlock()
}

func (q *vertexQueue) appendAll(batch [][]byte) {
	q.mu.Lock()
	q.msgs = append(q.msgs, batch...)
	q.mu.Unlock()
}

// drain atomically snapshots and clears the queue, so that a later
// append starts a fresh queue rather than appending to the drained
// slice's backing array.
func (q *vertexQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	return out
}

// peek returns a copy of the current contents without clearing them.
// Nothing calls it at present; the needAllMessages read-without-drain
// path goes through SourceStore instead.
func (q *vertexQueue) peek() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return nil
	}
	out := make([][]byte, len(q.msgs))
	copy(out, q.msgs)
	return out
}

func (q *vertexQueue) has() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) > 0
}

// partitionBucket holds every destination queue for one partition. The
// top-level map is guarded separately from each queue so inserting a new
// destination never blocks an append into an existing one.
type partitionBucket struct {
	mu     sync.RWMutex
	queues map[string]*vertexQueue
}

func newPartitionBucket() *partitionBucket {
	return &partitionBucket{queues: make(map[string]*vertexQueue)}
}

// queueFor returns the queue for destID, creating it if absent. Creation
// is lock-free-insert-if-absent in spirit: we take the write lock only
// when the entry is missing, and re-check after acquiring it.
func (b *partitionBucket) queueFor(destID corestep.VertexID) *vertexQueue {
	key := destID.String()
	b.mu.RLock()
	q, ok := b.queues[key]
	b.mu.RUnlock()
	if ok {
		return q
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok = b.queues[key]; ok {
		return q
	}
	q = &vertexQueue{id: destID}
	b.queues[key] = q
	return q
}

func (b *partitionBucket) existing(destID corestep.VertexID) (*vertexQueue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[destID.String()]
	return q, ok
}

func (b *partitionBucket) hasAny() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, q := range b.queues {
		if q.has() {
			return true
		}
	}
	return false
}

// destinationsWithMessages returns the ids of every destination currently
// holding at least one message, used to resolve lazily-created vertices
// (spec.md §3).
func (b *partitionBucket) destinationsWithMessages() []corestep.VertexID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []corestep.VertexID
	for _, q := range b.queues {
		if q.has() {
			out = append(out, q.id)
		}
	}
	return out
}

// Store is the mapping partitionId -> VertexId -> byte-encoded queue of
// messages described in spec.md §3 and §4.1.
type Store struct {
	mu         sync.RWMutex
	partitions map[corestep.PartitionID]*partitionBucket
}

// New returns an empty Store.
func New() *Store {
	return &Store{partitions: make(map[corestep.PartitionID]*partitionBucket)}
}

func (s *Store) bucketFor(partitionID corestep.PartitionID) *partitionBucket {
	s.mu.RLock()
	b, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.partitions[partitionID]; ok {
		return b
	}
	b = newPartitionBucket()
	s.partitions[partitionID] = b
	return b
}

// AddPartitionMessage appends one encoded message for destID in
// partitionID. Atomic with respect to other callers targeting the same
// destID (spec.md §4.1).
func (s *Store) AddPartitionMessage(partitionID corestep.PartitionID, destID corestep.VertexID, msg []byte) {
	s.bucketFor(partitionID).queueFor(destID).append(msg)
}

// AddPartitionMessages batch-appends entries for partitionID, preserving
// the same final queue contents as a sequence of single appends in the
// batch's order for each destID (spec.md §4.1 invariant).
func (s *Store) AddPartitionMessages(partitionID corestep.PartitionID, batch []Entry) {
	bucket := s.bucketFor(partitionID)
	grouped := make(map[string]*vertexQueue, len(batch))
	order := make(map[string][][]byte, len(batch))
	for _, e := range batch {
		key := e.DestID.String()
		q, ok := grouped[key]
		if !ok {
			q = bucket.queueFor(e.DestID)
			grouped[key] = q
		}
		order[key] = append(order[key], e.Encoded)
	}
	for key, q := range grouped {
		q.appendAll(order[key])
	}
}

// RemoveVertexMessages atomically snapshots and clears destID's queue in
// partitionID, returning a single-pass iterable of its messages.
// Subsequent appends start a new, empty queue (spec.md §4.1).
func (s *Store) RemoveVertexMessages(partitionID corestep.PartitionID, destID corestep.VertexID) [][]byte {
	b := s.bucketFor(partitionID)
	q, ok := b.existing(destID)
	if !ok {
		return nil
	}
	return q.drain()
}

// HasMessagesForVertex reports whether destID currently has any buffered
// messages in partitionID.
func (s *Store) HasMessagesForVertex(partitionID corestep.PartitionID, destID corestep.VertexID) bool {
	b := s.bucketFor(partitionID)
	q, ok := b.existing(destID)
	if !ok {
		return false
	}
	return q.has()
}

// HasMessagesForPartition reports whether any vertex in partitionID has
// buffered messages.
func (s *Store) HasMessagesForPartition(partitionID corestep.PartitionID) bool {
	s.mu.RLock()
	b, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return b.hasAny()
}

// DestinationsWithMessages returns the ids of every vertex in
// partitionID currently holding at least one buffered message, including
// ids that have never been added to the partition's vertex map: a
// message may be the first sign of a vertex BSP creates lazily (spec.md
// §3).
func (s *Store) DestinationsWithMessages(partitionID corestep.PartitionID) []corestep.VertexID {
	s.mu.RLock()
	b, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.destinationsWithMessages()
}

// ClearPartition drops every queue for partitionID.
func (s *Store) ClearPartition(partitionID corestep.PartitionID) {
	s.mu.Lock()
	delete(s.partitions, partitionID)
	s.mu.Unlock()
}
