package executor

import (
	"context"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
)

// ComputeContext is what a user algorithm receives for one vertex
// invocation: the vertex itself, the messages it is allowed to see this
// logical super-step, and a way to send outgoing messages (spec.md §6's
// compute(vertex, messages) / sendMessageTo / sendMessageToAllEdges
// collaborator contract).
type ComputeContext struct {
	Vertex   *corestep.Vertex
	Messages [][]byte

	ctx context.Context
	rp  *cache.RequestProcessor
}

// SendMessageTo routes one encoded message to destID through this
// compute thread's RequestProcessor.
func (c *ComputeContext) SendMessageTo(destID corestep.VertexID, encoded []byte) error {
	return c.rp.Send(c.ctx, destID, encoded)
}

// SendMessageToAllEdges sends the same encoded message to every one of
// the vertex's out-edge targets.
func (c *ComputeContext) SendMessageToAllEdges(encoded []byte) error {
	for _, e := range c.Vertex.Edges() {
		if err := c.SendMessageTo(e.DstID(), encoded); err != nil {
			return err
		}
	}
	return nil
}

// ComputeFunc is a user algorithm's per-vertex compute step. It must not
// retain cc past its return; cc.Vertex must call VoteToHalt itself if it
// wants to stop running.
type ComputeFunc func(cc *ComputeContext) error

// PartitionStats summarises one super-step's work over the partitions a
// PartitionExecutor ran, following spec.md §4.4.
type PartitionStats struct {
	VerticesComputed int64
	Halted           int64
	MessagesSent     int64
	MessageBytesSent int64
}
