package token_test

import (
	"testing"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/token"
)

func TestRingAdvancesInFixedOrder(t *testing.T) {
	r := token.NewRing([]corestep.WorkerID{1, 2, 3})
	if r.First() != 1 {
		t.Fatalf("expected first holder 1, got %d", r.First())
	}
	if got := r.Next(1); got != 2 {
		t.Fatalf("expected next(1) == 2, got %d", got)
	}
	if got := r.Next(3); got != 1 {
		t.Fatalf("expected ring to wrap: next(3) == 1, got %d", got)
	}
}

func TestGlobalTokenOnlyFirstHolderStartsWithToken(t *testing.T) {
	ring := token.NewRing([]corestep.WorkerID{1, 2, 3})
	first := token.NewGlobalToken(ring, 1)
	second := token.NewGlobalToken(ring, 2)

	if !first.HasToken() {
		t.Fatal("expected ring.First() to start holding the token")
	}
	if second.HasToken() {
		t.Fatal("expected non-first worker to start without the token")
	}
}

func TestReleaseIsNoOpUntilQuiescent(t *testing.T) {
	ring := token.NewRing([]corestep.WorkerID{1, 2})
	gt := token.NewGlobalToken(ring, 1)

	var sent []corestep.WorkerID
	send := func(dest corestep.WorkerID, _ uint64) error {
		sent = append(sent, dest)
		return nil
	}

	ok, err := gt.Release(func() bool { return false }, send)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected release to be refused while not quiescent")
	}
	if len(sent) != 0 {
		t.Fatal("expected no send while not quiescent")
	}
	if !gt.HasToken() {
		t.Fatal("expected token to remain held after a refused release")
	}

	ok, err = gt.Release(func() bool { return true }, send)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected release to succeed once quiescent")
	}
	if len(sent) != 1 || sent[0] != 2 {
		t.Fatalf("expected token sent to next ring member (2), got %v", sent)
	}
	if gt.HasToken() {
		t.Fatal("expected token to no longer be held after release")
	}
}

func TestReceiveGrantsToken(t *testing.T) {
	ring := token.NewRing([]corestep.WorkerID{1, 2})
	gt := token.NewGlobalToken(ring, 2)
	if gt.HasToken() {
		t.Fatal("worker 2 should not start with the token")
	}
	gt.Receive(5)
	if !gt.HasToken() {
		t.Fatal("expected Receive to grant the token")
	}
	if gt.Generation() != 5 {
		t.Fatalf("expected generation 5, got %d", gt.Generation())
	}
}
