package codec

import "github.com/gogo/protobuf/proto"

// ProtoMessage is the minimal interface protoc-gen-gogo generates onto a
// message type: Reset/String/ProtoMessage plus whatever gogo/protobuf's
// reflection-based proto.Marshal needs from struct tags.
type ProtoMessage interface {
	Reset()
	String() string
	ProtoMessage()
}

// ProtobufCodec is the codec named in SPEC_FULL.md §4.1: Protocol Buffers
// wire format, the one every generated stub/registrant is expected to use
// by default. T is the value type (e.g. StringMessage); PT constrains *T to
// implement ProtoMessage, the same two-type-parameter shape used to adapt
// Go generics to code-generated pointer-receiver message types.
type ProtobufCodec[T any, PT interface {
	*T
	ProtoMessage
}] struct{}

func (c ProtobufCodec[T, PT]) Encode(v T) ([]byte, error) {
	data, err := proto.Marshal(PT(&v))
	if err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return data, nil
}

func (c ProtobufCodec[T, PT]) Decode(data []byte) (T, error) {
	var v T
	if err := proto.Unmarshal(data, PT(&v)); err != nil {
		return v, &Error{Op: "decode", Err: err}
	}
	return v, nil
}

func (c ProtobufCodec[T, PT]) Clone() Codec[T] { return ProtobufCodec[T, PT]{} }
