package transport

import (
	"bytes"
	"encoding/gob"

	"github.com/vertexmesh/corestep/pkg/cache"
	"github.com/vertexmesh/corestep/pkg/corestep"
)

func init() {
	gob.Register(corestep.Int64VertexID(0))
	gob.Register(corestep.BytesVertexID(""))
}

type frameKind int

const (
	frameWorkerMessages frameKind = iota
	frameTokenRequest
	frameFork
	frameGlobalToken
	framePartitionToken
)

// frame is the single wire envelope every request kind is packed into
// before being gob-encoded and carried inside a wrapperspb.BytesValue.
type frame struct {
	Kind        frameKind
	Batches     []cache.PartitionBatch
	PartitionID corestep.PartitionID
	Generation  uint64
}

func encodeFrame(f frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f)
	return f, err
}
