// Package token implements the circulating-token layer used by the
// token serialisability discipline (spec.md §4.4): a single token moves
// around a fixed ring of workers (or, for per-partition tokens, a fixed
// ring of partition owners), and is only passed onward once the current
// holder has reached quiescence.
//
// The ring order is not specified by the distilled spec (Open Question
// (a)). NewRing takes the circulation order from its caller exactly as
// given and does not sort it; cmd/workerd passes ascending WorkerID
// order (0..n-1), which every worker can derive independently without a
// coordination round trip. The order is held fixed for the run.
package token

import "github.com/vertexmesh/corestep/pkg/corestep"

// Ring is a fixed, deterministic circular order over a set of ids. It
// holds no mutable state of its own; callers track whose turn it is.
type Ring struct {
	order []corestep.WorkerID
	index map[corestep.WorkerID]int
}

// NewRing builds a Ring from order, which must already be in the
// intended circulation sequence and contain no duplicates.
func NewRing(order []corestep.WorkerID) *Ring {
	cp := make([]corestep.WorkerID, len(order))
	copy(cp, order)
	idx := make(map[corestep.WorkerID]int, len(cp))
	for i, w := range cp {
		idx[w] = i
	}
	return &Ring{order: cp, index: idx}
}

// Len returns the number of members in the ring.
func (r *Ring) Len() int { return len(r.order) }

// At returns the member at position i, modulo the ring length.
func (r *Ring) At(i int) corestep.WorkerID {
	n := len(r.order)
	return r.order[((i%n)+n)%n]
}

// Next returns the member that follows w in ring order.
func (r *Ring) Next(w corestep.WorkerID) corestep.WorkerID {
	i, ok := r.index[w]
	if !ok {
		return w
	}
	return r.At(i + 1)
}

// First returns the ring's designated starting holder, the member at
// index 0. A fresh run always starts the token here.
func (r *Ring) First() corestep.WorkerID {
	return r.order[0]
}
