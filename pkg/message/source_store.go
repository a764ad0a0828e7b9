package message

import (
	"sync"

	"github.com/vertexmesh/corestep/pkg/corestep"
)

// sourceSlot holds, for one destination vertex, the most recent encoded
// message received from each source worker.
type sourceSlot struct {
	mu    sync.Mutex
	id    corestep.VertexID
	bySrc map[corestep.WorkerID][]byte
}

func (s *sourceSlot) set(src corestep.WorkerID, msg []byte) {
	s.mu.Lock()
	if s.bySrc == nil {
		s.bySrc = make(map[corestep.WorkerID][]byte)
	}
	s.bySrc[src] = msg
	s.mu.Unlock()
}

func (s *sourceSlot) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bySrc) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(s.bySrc))
	for _, v := range s.bySrc {
		out = append(out, v)
	}
	return out
}

func (s *sourceSlot) has() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySrc) > 0
}

// SourceStore is the needAllMsgs variant of Store (spec.md §4.1, §4.4):
// rather than an append-only queue, each (partitionId, destId) holds at
// most one message per source worker, overwritten on every delivery, and
// read without removal so a repeated compute call keeps seeing the
// latest value from every neighbour that has ever sent one.
type SourceStore struct {
	mu         sync.RWMutex
	partitions map[corestep.PartitionID]map[string]*sourceSlot
}

// NewSourceStore returns an empty SourceStore.
func NewSourceStore() *SourceStore {
	return &SourceStore{partitions: make(map[corestep.PartitionID]map[string]*sourceSlot)}
}

func (s *SourceStore) slotFor(partitionID corestep.PartitionID, destID corestep.VertexID) *sourceSlot {
	key := destID.String()

	s.mu.RLock()
	bucket, ok := s.partitions[partitionID]
	if ok {
		slot, ok := bucket[key]
		s.mu.RUnlock()
		if ok {
			return slot
		}
	} else {
		s.mu.RUnlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok = s.partitions[partitionID]
	if !ok {
		bucket = make(map[string]*sourceSlot)
		s.partitions[partitionID] = bucket
	}
	slot, ok := bucket[key]
	if !ok {
		slot = &sourceSlot{id: destID}
		bucket[key] = slot
	}
	return slot
}

// SetVertexMessage overwrites the message recorded from src for destID,
// replacing whatever that source previously sent.
func (s *SourceStore) SetVertexMessage(partitionID corestep.PartitionID, destID corestep.VertexID, src corestep.WorkerID, msg []byte) {
	s.slotFor(partitionID, destID).set(src, msg)
}

// GetVertexMessagesWithoutSource returns every source's latest message
// for destID without clearing any of them (spec.md §4.1's needAllMsgs
// read path).
func (s *SourceStore) GetVertexMessagesWithoutSource(partitionID corestep.PartitionID, destID corestep.VertexID) [][]byte {
	s.mu.RLock()
	bucket, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	s.mu.RLock()
	slot, ok := bucket[destID.String()]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return slot.snapshot()
}

// HasMessagesForVertex reports whether destID has a recorded message from
// at least one source.
func (s *SourceStore) HasMessagesForVertex(partitionID corestep.PartitionID, destID corestep.VertexID) bool {
	s.mu.RLock()
	bucket, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	s.mu.RLock()
	slot, ok := bucket[destID.String()]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return slot.has()
}

// DestinationsWithMessages returns the ids of every vertex in
// partitionID with at least one recorded message, including ids never
// added to the partition's vertex map (spec.md §3's lazy-creation note).
func (s *SourceStore) DestinationsWithMessages(partitionID corestep.PartitionID) []corestep.VertexID {
	s.mu.RLock()
	bucket, ok := s.partitions[partitionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	var out []corestep.VertexID
	s.mu.RLock()
	for _, slot := range bucket {
		if slot.has() {
			out = append(out, slot.id)
		}
	}
	s.mu.RUnlock()
	return out
}

// ClearPartition drops every slot for partitionID.
func (s *SourceStore) ClearPartition(partitionID corestep.PartitionID) {
	s.mu.Lock()
	delete(s.partitions, partitionID)
	s.mu.Unlock()
}
