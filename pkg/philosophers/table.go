// Package philosophers implements the hygienic dining-philosophers
// discipline (Chandy-Misra) used to serialise access to shared boundary
// state under the vertex-lock and partition-lock disciplines (spec.md
// §4.4, §4.5). Each pair of neighbours that must not compute
// concurrently shares one fork. A neighbour either holds the fork or
// does not; a held fork is "dirty" if it has been used since it was last
// handed over, and "clean" otherwise. The initial assignment — the fork
// goes to whichever neighbour has the larger id, and starts dirty — is
// what gives the algorithm its deadlock- and starvation-freedom
// guarantees: the initial precedence graph is acyclic, and a clean fork
// is never surrendered, bounding how long any one philosopher waits.
package philosophers

import (
	"sort"
	"sync"

	"github.com/vertexmesh/corestep/pkg/corestep"
)

// RequestSender delivers a fork request to peer, grounded on the
// SendToken wire request (spec.md §6).
type RequestSender func(peer corestep.WorkerID) error

// ForkSender delivers a fork to peer, grounded on the SendFork wire
// request (spec.md §6).
type ForkSender func(peer corestep.WorkerID) error

type forkState struct {
	haveFork      bool
	dirty         bool
	requested     bool
	peerRequested bool
}

// Table tracks one philosopher's relationship with every neighbour it
// shares a fork with.
type Table struct {
	mu    sync.Mutex
	cond  *sync.Cond
	local corestep.WorkerID
	peers map[corestep.WorkerID]*forkState
}

// New builds a Table for local among neighbours. Forks are assigned
// using the standard Chandy-Misra rule: the higher id starts holding
// the fork, and every fork starts dirty. A neighbour id repeated in the
// slice indicates corrupt partitioning and is rejected with
// KindDuplicateNeighbour rather than silently overwritten.
func New(local corestep.WorkerID, neighbours []corestep.WorkerID) (*Table, error) {
	t := &Table{local: local, peers: make(map[corestep.WorkerID]*forkState, len(neighbours))}
	t.cond = sync.NewCond(&t.mu)
	for _, n := range neighbours {
		if _, ok := t.peers[n]; ok {
			return nil, corestep.NewError(corestep.KindDuplicateNeighbour, "neighbour registered twice in philosopher table", nil)
		}
		t.peers[n] = &forkState{haveFork: local > n, dirty: true}
	}
	return t, nil
}

// Neighbours returns the configured neighbour set in ascending id order.
func (t *Table) Neighbours() []corestep.WorkerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]corestep.WorkerID, 0, len(t.peers))
	for n := range t.peers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasFork reports whether the fork shared with peer is currently held.
func (t *Table) HasFork(peer corestep.WorkerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.peers[peer]
	return ok && st.haveFork
}

// AcquireForks blocks until every fork shared with neighbours is held,
// sending a request for any not already held or already requested, and
// returns once they are all present. A fork already held is cleaned in
// place, so a request for it that arrives before or during the critical
// section is deferred to ReleaseForks. A caller must hold every fork in
// its critical section before computing, matching spec.md §4.4's
// vertex-lock / partition-lock discipline.
func (t *Table) AcquireForks(neighbours []corestep.WorkerID, send RequestSender) error {
	t.mu.Lock()
	var toRequest []corestep.WorkerID
	for _, n := range neighbours {
		st, ok := t.peers[n]
		if !ok {
			continue
		}
		if st.haveFork {
			st.dirty = false
			continue
		}
		if st.requested {
			continue
		}
		st.requested = true
		toRequest = append(toRequest, n)
	}
	t.mu.Unlock()

	for _, n := range toRequest {
		if err := send(n); err != nil {
			return err
		}
	}

	t.mu.Lock()
	for !t.allHeldLocked(neighbours) {
		t.cond.Wait()
	}
	t.mu.Unlock()
	return nil
}

func (t *Table) allHeldLocked(neighbours []corestep.WorkerID) bool {
	for _, n := range neighbours {
		st, ok := t.peers[n]
		if !ok {
			continue
		}
		if !st.haveFork {
			return false
		}
	}
	return true
}

// ReleaseForks marks every fork shared with neighbours as used (dirty)
// and immediately hands over any whose owner has an outstanding
// request, matching the Chandy-Misra release rule.
func (t *Table) ReleaseForks(neighbours []corestep.WorkerID, send ForkSender) error {
	t.mu.Lock()
	var toGiveAway []corestep.WorkerID
	for _, n := range neighbours {
		st, ok := t.peers[n]
		if !ok || !st.haveFork {
			continue
		}
		st.dirty = true
		if st.peerRequested {
			st.haveFork = false
			st.dirty = false
			st.requested = false
			st.peerRequested = false
			toGiveAway = append(toGiveAway, n)
		}
	}
	t.mu.Unlock()

	for _, n := range toGiveAway {
		if err := send(n); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveRequest handles an incoming fork request from peer: a dirty
// held fork is handed over immediately; a clean held fork is retained
// but the request is remembered so the next ReleaseForks hands it over;
// a fork this philosopher does not currently hold records the same
// pending flag for when it is received back.
func (t *Table) ReceiveRequest(peer corestep.WorkerID, send ForkSender) error {
	t.mu.Lock()
	st, ok := t.peers[peer]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	if st.haveFork && st.dirty {
		st.haveFork = false
		st.dirty = false
		st.requested = false
		t.mu.Unlock()
		return send(peer)
	}
	st.peerRequested = true
	t.mu.Unlock()
	return nil
}

// ReceiveFork records arrival of the fork shared with peer. A received
// fork starts clean: it only becomes dirty once this philosopher has
// actually used it (ReleaseForks), so a request arriving before the
// critical section runs is held pending rather than handed straight
// back — otherwise a fork could be yanked away before the philosopher
// that just acquired it ever computes.
func (t *Table) ReceiveFork(peer corestep.WorkerID) {
	t.mu.Lock()
	if st, ok := t.peers[peer]; ok {
		st.haveFork = true
		st.dirty = false
		st.requested = false
	}
	t.mu.Unlock()
	t.cond.Broadcast()
}
