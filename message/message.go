// Package message defines the data that crosses every boundary of the RPC
// pipeline: the (payload, controller) bundle, and the protobuf-carried
// request/response metadata records described in the wire format.
//
// RpcRequestMeta and RpcResponseMeta are written in the shape
// protoc-gen-gogo would generate from a .proto file: plain structs with
// `protobuf:"..."` struct tags, marshaled by github.com/gogo/protobuf/proto
// reflection rather than by a registered descriptor. Field numbers below
// match the wire contract in SPEC_FULL.md §6 exactly, so any real protoc
// run against the equivalent .proto would be wire-compatible with this.
package message

import (
	"fmt"

	"github.com/gogo/protobuf/proto"

	"prpc/controller"
)

// Bundle is the (payload_bytes, controller) pair that flows through codec,
// protocol, and dispatch stages alike.
type Bundle struct {
	Payload    []byte
	Controller *controller.Controller
}

// RpcRequestMeta is the protobuf-encoded header of a binary-protocol request.
type RpcRequestMeta struct {
	ServiceName  string `protobuf:"bytes,1,opt,name=service_name,json=serviceName,proto3" json:"service_name,omitempty"`
	MethodName   string `protobuf:"bytes,2,opt,name=method_name,json=methodName,proto3" json:"method_name,omitempty"`
	SequenceId   uint64 `protobuf:"varint,3,opt,name=sequence_id,json=sequenceId,proto3" json:"sequence_id,omitempty"`
	CompressType uint32 `protobuf:"varint,4,opt,name=compress_type,json=compressType,proto3" json:"compress_type,omitempty"`
}

func (m *RpcRequestMeta) Reset()         { *m = RpcRequestMeta{} }
func (m *RpcRequestMeta) String() string { return proto.CompactTextString(m) }
func (*RpcRequestMeta) ProtoMessage()    {}

// Marshal encodes the request meta using the protobuf wire format.
func (m *RpcRequestMeta) Marshal() ([]byte, error) { return proto.Marshal(m) }

// Unmarshal decodes the request meta from protobuf wire bytes.
func (m *RpcRequestMeta) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// RpcResponseMeta is the protobuf-encoded header of a binary-protocol response.
type RpcResponseMeta struct {
	SequenceId   uint64 `protobuf:"varint,1,opt,name=sequence_id,json=sequenceId,proto3" json:"sequence_id,omitempty"`
	ErrorCode    uint32 `protobuf:"varint,2,opt,name=error_code,json=errorCode,proto3" json:"error_code,omitempty"`
	ErrorText    string `protobuf:"bytes,3,opt,name=error_text,json=errorText,proto3" json:"error_text,omitempty"`
	CompressType uint32 `protobuf:"varint,4,opt,name=compress_type,json=compressType,proto3" json:"compress_type,omitempty"`
}

func (m *RpcResponseMeta) Reset()         { *m = RpcResponseMeta{} }
func (m *RpcResponseMeta) String() string { return proto.CompactTextString(m) }
func (*RpcResponseMeta) ProtoMessage()    {}

// Marshal encodes the response meta using the protobuf wire format.
func (m *RpcResponseMeta) Marshal() ([]byte, error) { return proto.Marshal(m) }

// Unmarshal decodes the response meta from protobuf wire bytes.
func (m *RpcResponseMeta) Unmarshal(data []byte) error { return proto.Unmarshal(data, m) }

// ServiceMethod formats "service_name/method_name" for logging.
func (m *RpcRequestMeta) ServiceMethod() string {
	return fmt.Sprintf("%s/%s", m.ServiceName, m.MethodName)
}
