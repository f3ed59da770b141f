// Package testpb hand-writes a couple of protoc-gen-gogo-shaped message
// types and Registrants shared by every package's tests, mirroring the
// HelloService/HelloRegistrant/HelloStub shape of
// _examples/original_source's http_hello example — a stand-in for what
// generated code would normally produce from a .proto file.
package testpb

import (
	"context"
	"fmt"

	"github.com/gogo/protobuf/proto"

	"prpc/codec"
	"prpc/controller"
	"prpc/service"
)

// StringMessage is the one message type the test fixtures need: a single
// string field, protobuf-tagged the way protoc-gen-gogo would emit it.
type StringMessage struct {
	Value string `protobuf:"bytes,1,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *StringMessage) Reset()         { *m = StringMessage{} }
func (m *StringMessage) String() string { return proto.CompactTextString(m) }
func (*StringMessage) ProtoMessage()    {}

// Codec returns a fresh protobuf codec for StringMessage.
func Codec() codec.Codec[StringMessage] {
	return codec.ProtobufCodec[StringMessage, *StringMessage]{}
}

// EchoRegistrant serves "Echo" with two methods: Echo (returns the request
// verbatim, used by S1) and Fail (always returns a ServerError, used by S2).
type EchoRegistrant struct{}

func (EchoRegistrant) ServiceName() string { return "Echo" }

func (EchoRegistrant) Methods() []service.MethodEntry {
	echo := service.NewEncapsulatedMethod(
		"Echo",
		Codec(), Codec(),
		func(ctx context.Context, req StringMessage, ctrl *controller.Controller) (StringMessage, *controller.Controller, error) {
			return req, ctrl, nil
		},
	)
	fail := service.NewEncapsulatedMethod(
		"Fail",
		Codec(), Codec(),
		func(ctx context.Context, req StringMessage, ctrl *controller.Controller) (StringMessage, *controller.Controller, error) {
			return StringMessage{}, ctrl, &service.MethodError{Kind: service.ServerError, Text: fmt.Sprintf("Fail: %s", req.Value)}
		},
	)
	return []service.MethodEntry{
		{Name: "Echo", Method: echo},
		{Name: "Fail", Method: fail},
	}
}

// MetricRegistrant serves "Metric" with a single "metric" method that
// reports a caller-supplied counter as plain text — the exact fixture the
// HTTP metric scenario (S4) names: GET /Metric/metric with throughput
// counter=7 must yield 200 OK, Content-Type: text/plain, body
// "Throughput: 7". It overrides the controller's response body and content
// type rather than returning the count through the protobuf codec, since
// S4's wire contract is plain text, not a protobuf-encoded StringMessage.
type MetricRegistrant struct {
	Count func() uint64
}

func (MetricRegistrant) ServiceName() string { return "Metric" }

func (r MetricRegistrant) Methods() []service.MethodEntry {
	metric := service.NewEncapsulatedMethod(
		"metric",
		Codec(), Codec(),
		func(ctx context.Context, req StringMessage, ctrl *controller.Controller) (StringMessage, *controller.Controller, error) {
			ctrl.SetContentType("text/plain")
			ctrl.SetResponseBody([]byte(fmt.Sprintf("Throughput: %d", r.Count())))
			return StringMessage{}, ctrl, nil
		},
	)
	return []service.MethodEntry{{Name: "metric", Method: metric}}
}
