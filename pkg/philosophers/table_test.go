package philosophers_test

import (
	"sync"
	"testing"
	"time"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/philosophers"
)

// triangle wires three Tables (ids 1, 2, 3) together so that a
// ReceiveRequest or ReceiveFork call on one table's peer routes directly
// to the matching call on the other.
type triangle struct {
	tables map[corestep.WorkerID]*philosophers.Table
}

func newTriangle() *triangle {
	ids := []corestep.WorkerID{1, 2, 3}
	tr := &triangle{tables: make(map[corestep.WorkerID]*philosophers.Table)}
	for _, id := range ids {
		var neighbours []corestep.WorkerID
		for _, other := range ids {
			if other != id {
				neighbours = append(neighbours, other)
			}
		}
		table, err := philosophers.New(id, neighbours)
		if err != nil {
			panic(err)
		}
		tr.tables[id] = table
	}
	return tr
}

func (tr *triangle) requestSender(from corestep.WorkerID) philosophers.RequestSender {
	return func(peer corestep.WorkerID) error {
		return tr.tables[peer].ReceiveRequest(from, tr.forkSender(peer))
	}
}

func (tr *triangle) forkSender(from corestep.WorkerID) philosophers.ForkSender {
	return func(peer corestep.WorkerID) error {
		tr.tables[peer].ReceiveFork(from)
		return nil
	}
}

func TestNewRejectsDuplicateNeighbour(t *testing.T) {
	_, err := philosophers.New(1, []corestep.WorkerID{2, 3, 2})
	if err == nil {
		t.Fatal("expected an error for a neighbour listed twice")
	}
	if !corestep.IsKind(err, corestep.KindDuplicateNeighbour) {
		t.Fatalf("expected KindDuplicateNeighbour, got %v", err)
	}
}

func TestInitialAssignmentIsAcyclic(t *testing.T) {
	tr := newTriangle()
	// Chandy-Misra: higher id starts holding the fork shared with a
	// lower id. Every fork must therefore start held by exactly one of
	// its two endpoints.
	for _, pair := range [][2]corestep.WorkerID{{1, 2}, {1, 3}, {2, 3}} {
		a, b := pair[0], pair[1]
		aHas := tr.tables[a].HasFork(b)
		bHas := tr.tables[b].HasFork(a)
		if aHas == bHas {
			t.Fatalf("fork(%d,%d) must be held by exactly one side, got a=%v b=%v", a, b, aHas, bHas)
		}
		higher, lower := a, b
		if b > a {
			higher, lower = b, a
		}
		if !tr.tables[higher].HasFork(lower) {
			t.Fatalf("expected higher id %d to start holding fork shared with the other", higher)
		}
	}
}

func TestAllThreePhilosophersEventuallyAcquireForks(t *testing.T) {
	tr := newTriangle()
	ids := []corestep.WorkerID{1, 2, 3}

	var wg sync.WaitGroup
	acquired := make(chan corestep.WorkerID, len(ids))
	for _, id := range ids {
		id := id
		neighbours := tr.tables[id].Neighbours()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.tables[id].AcquireForks(neighbours, tr.requestSender(id)); err != nil {
				t.Errorf("unexpected error acquiring forks for %d: %v", id, err)
				return
			}
			acquired <- id
			if err := tr.tables[id].ReleaseForks(neighbours, tr.forkSender(id)); err != nil {
				t.Errorf("unexpected error releasing forks for %d: %v", id, err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all three philosophers to acquire and release their forks")
	}
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	if count != 3 {
		t.Fatalf("expected all 3 philosophers to acquire their forks, got %d", count)
	}
}
