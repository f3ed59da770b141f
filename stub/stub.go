// Package stub provides the typed client-side wrapper generated code would
// normally produce: one Stub binds a (service, method) name and a pair of
// codecs to a Channel, giving callers a plain Call(ctx, req) (resp, info,
// error) signature instead of the Channel's raw bytes-in/bytes-out contract.
//
// This is the Go shape of copra::stub::RpcWrapper
// (_examples/original_source/caper/src/stub.rs): generated client code holds
// one of these per method and forwards user calls through it.
package stub

import (
	"context"
	"fmt"

	"prpc/channel"
	"prpc/codec"
	"prpc/message"
	"prpc/service"
)

// RpcInfo is the per-call diagnostic record handed back alongside the
// response: the service and method called and, when a response meta came
// back, its sequence id. It does not record which backend served the call
// or how long the call took.
type RpcInfo struct {
	ServiceName string
	MethodName  string
	SequenceId  uint64
}

// Stub[Req, Resp] is a typed binding of one RPC method to a Channel.
type Stub[Req, Resp any] struct {
	ch          *channel.Channel
	serviceName string
	methodName  string
	reqCodec    codec.Codec[Req]
	respCodec   codec.Codec[Resp]
}

// New constructs a Stub for one (service, method) pair. reqCodec encodes
// the outgoing request; respCodec decodes the incoming response.
func New[Req, Resp any](ch *channel.Channel, serviceName, methodName string, reqCodec codec.Codec[Req], respCodec codec.Codec[Resp]) *Stub[Req, Resp] {
	return &Stub[Req, Resp]{
		ch:          ch,
		serviceName: serviceName,
		methodName:  methodName,
		reqCodec:    reqCodec.Clone(),
		respCodec:   respCodec.Clone(),
	}
}

// Call encodes req, performs the RPC over the bound Channel, and decodes
// the response, mapping codec and server-side failures into
// *service.MethodError like every other layer of the pipeline.
func (s *Stub[Req, Resp]) Call(ctx context.Context, req Req) (Resp, RpcInfo, error) {
	var zero Resp

	body, err := s.reqCodec.Encode(req)
	if err != nil {
		return zero, RpcInfo{}, &service.MethodError{Kind: service.CodecError, Text: fmt.Sprintf("encode request: %v", err)}
	}

	meta := &message.RpcRequestMeta{ServiceName: s.serviceName, MethodName: s.methodName}
	respMeta, respBody, err := s.ch.Call(ctx, meta, body)
	info := RpcInfo{ServiceName: s.serviceName, MethodName: s.methodName}
	if respMeta != nil {
		info.SequenceId = respMeta.SequenceId
	}
	if err != nil {
		return zero, info, err
	}

	resp, err := s.respCodec.Decode(respBody)
	if err != nil {
		return zero, info, &service.MethodError{Kind: service.CodecError, Text: fmt.Sprintf("decode response: %v", err)}
	}
	return resp, info, nil
}

// ServiceName returns the bound service name.
func (s *Stub[Req, Resp]) ServiceName() string { return s.serviceName }

// MethodName returns the bound method name.
func (s *Stub[Req, Resp]) MethodName() string { return s.methodName }
