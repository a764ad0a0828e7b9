package corestep

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// VertexType classifies an owned vertex by where its out-neighbours
// live, set once after graph load (spec.md §3, §4.5).
type VertexType int

const (
	// Internal vertices have every out-neighbour in the same partition.
	Internal VertexType = iota
	// LocalBoundary vertices have every out-neighbour on the same
	// worker, with at least one in a different partition.
	LocalBoundary
	// RemoteBoundary vertices have every out-of-partition neighbour on
	// a different worker.
	RemoteBoundary
	// MixedBoundary vertices have both local- and remote-boundary
	// out-neighbours.
	MixedBoundary
)

func (t VertexType) String() string {
	switch t {
	case Internal:
		return "INTERNAL"
	case LocalBoundary:
		return "LOCAL_BOUNDARY"
	case RemoteBoundary:
		return "REMOTE_BOUNDARY"
	case MixedBoundary:
		return "MIXED_BOUNDARY"
	default:
		return "UNKNOWN"
	}
}

// VertexTypeStore classifies every vertex owned by this worker. It is
// populated once, after graph load, under the token discipline (spec.md
// §4.5), and is safe for concurrent reads once populated.
//
// Local-boundary and remote-boundary membership is tracked with one
// roaring.Bitmap each, keyed by the vertex id's numeric form (when ids
// are Int64VertexID), so membership tests reuse a compact, well-tested
// bitmap implementation instead of hand-rolled bit twiddling.
type VertexTypeStore struct {
	mu    sync.RWMutex
	types map[string]VertexType

	// localBoundary and remoteBoundary record, per numeric vertex id,
	// whether that vertex has a boundary edge of the corresponding
	// flavor. Only populated for Int64VertexID-keyed vertices; byte
	// string ids fall back to the types map alone.
	localBoundary  *roaring.Bitmap
	remoteBoundary *roaring.Bitmap
}

// NewVertexTypeStore returns an empty VertexTypeStore.
func NewVertexTypeStore() *VertexTypeStore {
	return &VertexTypeStore{
		types:          make(map[string]VertexType),
		localBoundary:  roaring.NewBitmap(),
		remoteBoundary: roaring.NewBitmap(),
	}
}

// Populate walks every vertex in every partition this worker owns and
// classifies it by consulting lookup for each out-edge's target. It must
// run to completion before any compute thread reads from the store.
func (s *VertexTypeStore) Populate(partitions []*Partition, lookup OwnerLookup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	localTask := lookup.LocalTaskID()
	for _, part := range partitions {
		for _, v := range part.Vertices() {
			hasLocalBoundary := false
			hasRemoteBoundary := false
			for _, e := range v.Edges() {
				owner, ok := lookup.Owner(e.DstID())
				if !ok {
					continue
				}
				if owner.PartitionID == part.ID() {
					continue
				}
				if owner.TaskID == localTask {
					hasLocalBoundary = true
				} else {
					hasRemoteBoundary = true
				}
			}

			var t VertexType
			switch {
			case hasLocalBoundary && hasRemoteBoundary:
				t = MixedBoundary
			case hasRemoteBoundary:
				t = RemoteBoundary
			case hasLocalBoundary:
				t = LocalBoundary
			default:
				t = Internal
			}
			s.types[v.ID().String()] = t

			if numeric, ok := v.ID().(Int64VertexID); ok {
				n := uint32(numeric)
				if hasLocalBoundary {
					s.localBoundary.Add(n)
				}
				if hasRemoteBoundary {
					s.remoteBoundary.Add(n)
				}
			}
		}
	}
}

// Type returns the classification recorded for id, defaulting to
// Internal if the vertex was never populated (e.g. created lazily by a
// message after the population pass).
func (s *VertexTypeStore) Type(id VertexID) VertexType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.types[id.String()]; ok {
		return t
	}
	return Internal
}

// HasLocalBoundary reports whether a numeric vertex id was recorded with
// at least one local-boundary out-edge.
func (s *VertexTypeStore) HasLocalBoundary(id Int64VertexID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localBoundary.Contains(uint32(id))
}

// HasRemoteBoundary reports whether a numeric vertex id was recorded
// with at least one remote-boundary out-edge.
func (s *VertexTypeStore) HasRemoteBoundary(id Int64VertexID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteBoundary.Contains(uint32(id))
}
