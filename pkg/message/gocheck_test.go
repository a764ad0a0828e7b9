package message_test

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/vertexmesh/corestep/pkg/corestep"
	"github.com/vertexmesh/corestep/pkg/message"
)

func Test(t *testing.T) { gc.TestingT(t) }

var _ = gc.Suite(new(StoreSuite))

// StoreSuite exercises the append/drain invariants spec.md §4.1 places
// on MessageStore: a drained queue is empty, a cleared partition answers
// "no messages" for every vertex it used to hold, and appends after a
// drain start a fresh queue rather than reusing the drained backing
// array.
type StoreSuite struct {
	store *message.Store
}

func (s *StoreSuite) SetUpTest(c *gc.C) {
	s.store = message.New()
}

func (s *StoreSuite) TestDrainEmptiesTheQueue(c *gc.C) {
	dest := corestep.Int64VertexID(1)
	s.store.AddPartitionMessage(0, dest, []byte("a"))
	s.store.AddPartitionMessage(0, dest, []byte("b"))

	c.Assert(s.store.HasMessagesForVertex(0, dest), gc.Equals, true)

	drained := s.store.RemoveVertexMessages(0, dest)
	c.Assert(drained, gc.HasLen, 2)
	c.Assert(s.store.HasMessagesForVertex(0, dest), gc.Equals, false)
}

func (s *StoreSuite) TestDrainThenAppendStartsFreshQueue(c *gc.C) {
	dest := corestep.Int64VertexID(1)
	s.store.AddPartitionMessage(0, dest, []byte("a"))
	first := s.store.RemoveVertexMessages(0, dest)
	c.Assert(first, gc.HasLen, 1)

	s.store.AddPartitionMessage(0, dest, []byte("b"))
	second := s.store.RemoveVertexMessages(0, dest)
	c.Assert(second, gc.HasLen, 1)
	c.Assert(string(second[0]), gc.Equals, "b")
}

func (s *StoreSuite) TestClearPartitionDropsEveryVertex(c *gc.C) {
	destA := corestep.Int64VertexID(1)
	destB := corestep.Int64VertexID(2)
	s.store.AddPartitionMessage(0, destA, []byte("a"))
	s.store.AddPartitionMessage(0, destB, []byte("b"))

	s.store.ClearPartition(0)

	c.Assert(s.store.HasMessagesForPartition(0), gc.Equals, false)
	c.Assert(s.store.HasMessagesForVertex(0, destA), gc.Equals, false)
	c.Assert(s.store.HasMessagesForVertex(0, destB), gc.Equals, false)
}

func (s *StoreSuite) TestBatchAppendPreservesOrderPerDestination(c *gc.C) {
	destA := corestep.Int64VertexID(1)
	destB := corestep.Int64VertexID(2)
	s.store.AddPartitionMessages(0, []message.Entry{
		{DestID: destA, Encoded: []byte("a1")},
		{DestID: destB, Encoded: []byte("b1")},
		{DestID: destA, Encoded: []byte("a2")},
	})

	gotA := s.store.RemoveVertexMessages(0, destA)
	c.Assert(gotA, gc.DeepEquals, [][]byte{[]byte("a1"), []byte("a2")})

	gotB := s.store.RemoveVertexMessages(0, destB)
	c.Assert(gotB, gc.DeepEquals, [][]byte{[]byte("b1")})
}

var _ = gc.Suite(new(SourceStoreSuite))

// SourceStoreSuite exercises the needAllMessages variant: a later
// message from the same source overwrites, not appends, and reads never
// drain.
type SourceStoreSuite struct {
	store *message.SourceStore
}

func (s *SourceStoreSuite) SetUpTest(c *gc.C) {
	s.store = message.NewSourceStore()
}

func (s *SourceStoreSuite) TestSameSourceOverwritesPreviousValue(c *gc.C) {
	dest := corestep.Int64VertexID(1)
	s.store.SetVertexMessage(0, dest, 7, []byte("first"))
	s.store.SetVertexMessage(0, dest, 7, []byte("second"))

	got := s.store.GetVertexMessagesWithoutSource(0, dest)
	c.Assert(got, gc.HasLen, 1)
	c.Assert(string(got[0]), gc.Equals, "second")
}

func (s *SourceStoreSuite) TestReadDoesNotDrain(c *gc.C) {
	dest := corestep.Int64VertexID(1)
	s.store.SetVertexMessage(0, dest, 1, []byte("x"))

	first := s.store.GetVertexMessagesWithoutSource(0, dest)
	second := s.store.GetVertexMessagesWithoutSource(0, dest)
	c.Assert(first, gc.HasLen, 1)
	c.Assert(second, gc.HasLen, 1)
}

func (s *SourceStoreSuite) TestDistinctSourcesAccumulate(c *gc.C) {
	dest := corestep.Int64VertexID(1)
	s.store.SetVertexMessage(0, dest, 1, []byte("from-1"))
	s.store.SetVertexMessage(0, dest, 2, []byte("from-2"))

	got := s.store.GetVertexMessagesWithoutSource(0, dest)
	c.Assert(got, gc.HasLen, 2)
}
