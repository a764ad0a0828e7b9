package token

import (
	"sync"

	"github.com/vertexmesh/corestep/pkg/corestep"
)

// QuiescenceCheck reports whether the local worker has no in-flight
// compute and no unflushed outgoing messages, the precondition for
// passing a held token onward (spec.md §4.4).
type QuiescenceCheck func() bool

// Sender delivers a token generation to dest, grounded on the
// SendGlobalToken / SendPartitionToken wire requests (spec.md §6).
type Sender func(dest corestep.WorkerID, generation uint64) error

// GlobalToken tracks whether the local worker currently holds the
// single token circulating over a ring of workers.
type GlobalToken struct {
	mu         sync.Mutex
	ring       *Ring
	local      corestep.WorkerID
	held       bool
	generation uint64
}

// NewGlobalToken builds a GlobalToken for local's position in ring. The
// worker at ring.First() starts out holding the token.
func NewGlobalToken(ring *Ring, local corestep.WorkerID) *GlobalToken {
	return &GlobalToken{
		ring:  ring,
		local: local,
		held:  ring.First() == local,
	}
}

// HasToken reports whether the local worker currently holds the token.
func (t *GlobalToken) HasToken() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.held
}

// Generation returns the token's current circulation count.
func (t *GlobalToken) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

// Receive records arrival of the token at this worker, as delivered by a
// SendGlobalToken request.
func (t *GlobalToken) Receive(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held = true
	t.generation = generation
}

// Release passes a held token to the next worker in ring order, but only
// once quiescent reports true; otherwise it is a no-op and the caller is
// expected to retry once the worker settles. Returns false without
// calling send if the token was not held or the worker was not
// quiescent.
func (t *GlobalToken) Release(quiescent QuiescenceCheck, send Sender) (bool, error) {
	t.mu.Lock()
	if !t.held {
		t.mu.Unlock()
		return false, nil
	}
	t.mu.Unlock()

	if !quiescent() {
		return false, nil
	}

	t.mu.Lock()
	if !t.held {
		t.mu.Unlock()
		return false, nil
	}
	next := t.ring.Next(t.local)
	gen := t.generation + 1
	t.held = false
	t.mu.Unlock()

	if err := send(next, gen); err != nil {
		t.mu.Lock()
		t.held = true
		t.mu.Unlock()
		return false, err
	}
	return true, nil
}

// PartitionToken is structurally identical to GlobalToken but is scoped
// to one partition: under the token serialisability discipline the
// executor consults it (via Executor.PartitionTokens) to gate
// LOCAL_BOUNDARY and MIXED_BOUNDARY vertices of that partition
// (spec.md §4.4). Kept as a distinct type so callers cannot accidentally
// pass a partition-scoped token where a global one is expected.
type PartitionToken struct {
	PartitionID corestep.PartitionID
	inner       *GlobalToken
}

// NewPartitionToken builds a PartitionToken for partitionID, using ring
// and local the same way NewGlobalToken does.
func NewPartitionToken(partitionID corestep.PartitionID, ring *Ring, local corestep.WorkerID) *PartitionToken {
	return &PartitionToken{PartitionID: partitionID, inner: NewGlobalToken(ring, local)}
}

func (t *PartitionToken) HasToken() bool     { return t.inner.HasToken() }
func (t *PartitionToken) Generation() uint64 { return t.inner.Generation() }
func (t *PartitionToken) Receive(gen uint64) { t.inner.Receive(gen) }

func (t *PartitionToken) Release(quiescent QuiescenceCheck, send Sender) (bool, error) {
	return t.inner.Release(quiescent, send)
}
