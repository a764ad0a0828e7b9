package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// rawCodec implements grpc's encoding.Codec over a single message type,
// *wrapperspb.BytesValue, so the hand-registered service descriptor in
// service.go can move arbitrary gob-encoded frames over grpc: the only
// protobuf schema it depends on is the well-known BytesValue wrapper
// that ships pre-compiled with the protobuf runtime, so no protoc step
// is required to stand up the wire format.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(*wrapperspb.BytesValue)
	if !ok {
		return nil, fmt.Errorf("transport: rawCodec cannot marshal %T", v)
	}
	return proto.Marshal(msg)
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(*wrapperspb.BytesValue)
	if !ok {
		return fmt.Errorf("transport: rawCodec cannot unmarshal into %T", v)
	}
	return proto.Unmarshal(data, msg)
}

func (rawCodec) Name() string { return "proto" }
