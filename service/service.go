// Package service wraps a typed user method into the uniform
// bytes-in/bytes-out contract the dispatcher and server drive: decode the
// request body with a codec, invoke the user callable with the typed
// request and the call's Controller, encode the typed response.
//
// This is the Go shape of copra::service::EncapsulatedMethod
// (_examples/original_source/caper/src/service.rs): a (codec, callable)
// pair, Clone-cheap, living for the server process once registered.
package service

import (
	"context"
	"fmt"

	"prpc/codec"
	"prpc/controller"
	"prpc/message"
)

// Kind enumerates the error taxonomy of SPEC_FULL.md §7.
type Kind int

const (
	KindUnspecified Kind = iota
	CodecError
	ChannelConcurrencyLimited
	NoHealthyBackend
	ConnectionLost
	Timeout
	HttpError
	ServerError
	UnknownError
)

func (k Kind) String() string {
	switch k {
	case CodecError:
		return "CodecError"
	case ChannelConcurrencyLimited:
		return "ChannelConcurrencyLimited"
	case NoHealthyBackend:
		return "NoHealthyBackend"
	case ConnectionLost:
		return "ConnectionLost"
	case Timeout:
		return "Timeout"
	case HttpError:
		return "HttpError"
	case ServerError:
		return "ServerError"
	case UnknownError:
		return "UnknownError"
	default:
		return "Unspecified"
	}
}

// MethodError is the structured error type that crosses the wire (as
// RpcResponseMeta.error_code/error_text) and is reconstructed client-side.
// error_code on the wire is 1+Kind ordinal for every Kind (see
// ErrorCodeForKind); Code and Text are set in-process (an HTTP status for
// HttpError, a server error code for ServerError). Only Kind and Text cross
// the wire: a MethodError the channel rebuilds from a response carries the
// raw wire error_code in Code.
type MethodError struct {
	Kind Kind
	Code int
	Text string
}

func (e *MethodError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("prpc: %s", e.Kind)
	}
	return fmt.Sprintf("prpc: %s: %s", e.Kind, e.Text)
}

// NotFound reports the dispatcher-level failure used for S2.
func NotFound(serviceName, methodName string) *MethodError {
	return &MethodError{Kind: ServerError, Code: 1, Text: fmt.Sprintf("method not found: %s/%s", serviceName, methodName)}
}

// wireKindOffset is the error_code <-> Kind ordinal mapping servers and
// channels both use to cross the wire (§6, left as an open question by the
// original spec and resolved in DESIGN.md): error_code = 1 + Kind ordinal.
const wireKindOffset = 1

// ErrorCodeForKind encodes a Kind as the wire error_code the server writes
// into RpcResponseMeta.
func ErrorCodeForKind(k Kind) uint32 { return wireKindOffset + uint32(k) }

// KindFromErrorCode decodes a wire error_code back into a Kind, as the
// channel does when reconstructing a MethodError client-side.
func KindFromErrorCode(code uint32) Kind {
	if code <= wireKindOffset {
		return UnknownError
	}
	return Kind(code - wireKindOffset)
}

// MethodFunc is a user-supplied RPC handler: typed request in, typed
// response (plus the call's Controller, possibly mutated) or an error out.
// Returning a *MethodError passes it through verbatim; any other error is
// reported to the caller as UnknownError (§4.4).
type MethodFunc[Req, Resp any] func(ctx context.Context, req Req, ctrl *controller.Controller) (Resp, *controller.Controller, error)

// EncapsulatedMethod is the type-erased, bytes-in/bytes-out wrapper around
// one MethodFunc and its pair of codecs. It is immutable and stateless
// after construction, so Clone is O(1) — the same value is safe to share
// across every call.
type EncapsulatedMethod struct {
	name string
	call func(ctx context.Context, req message.Bundle) (message.Bundle, *MethodError)
}

// NewEncapsulatedMethod composes codec.decode -> method -> codec.encode
// behind the uniform interface, per SPEC_FULL.md §4.4.
func NewEncapsulatedMethod[Req, Resp any](
	name string,
	reqCodec codec.Codec[Req],
	respCodec codec.Codec[Resp],
	fn MethodFunc[Req, Resp],
) *EncapsulatedMethod {
	reqCodec = reqCodec.Clone()
	respCodec = respCodec.Clone()
	return &EncapsulatedMethod{
		name: name,
		call: func(ctx context.Context, in message.Bundle) (message.Bundle, *MethodError) {
			req, err := reqCodec.Decode(in.Payload)
			if err != nil {
				return message.Bundle{Controller: in.Controller}, &MethodError{Kind: CodecError, Text: err.Error()}
			}

			resp, ctrl, callErr := fn(ctx, req, in.Controller)
			if ctrl == nil {
				ctrl = in.Controller
			}
			if callErr != nil {
				if me, ok := callErr.(*MethodError); ok {
					return message.Bundle{Controller: ctrl}, me
				}
				return message.Bundle{Controller: ctrl}, &MethodError{Kind: UnknownError, Text: callErr.Error()}
			}

			body, err := respCodec.Encode(resp)
			if err != nil {
				return message.Bundle{Controller: ctrl}, &MethodError{Kind: CodecError, Text: err.Error()}
			}
			return message.Bundle{Payload: body, Controller: ctrl}, nil
		},
	}
}

// Name returns the method name this was registered under.
func (m *EncapsulatedMethod) Name() string { return m.name }

// Call invokes the wrapped pipeline.
func (m *EncapsulatedMethod) Call(ctx context.Context, req message.Bundle) (message.Bundle, *MethodError) {
	return m.call(ctx, req)
}

// Clone returns a handle usable concurrently with the original; since an
// EncapsulatedMethod holds no per-call state, this is just the same value.
func (m *EncapsulatedMethod) Clone() *EncapsulatedMethod { return m }

// MethodEntry is one (method_name, method) contribution from a Registrant.
type MethodEntry struct {
	Name   string
	Method *EncapsulatedMethod
}

// Registrant contributes the methods of one service under a fixed service
// name — the Go shape of copra::dispatcher::Registrant / NamedRegistrant.
// Generated code (outside this module's scope) implements this once per
// service; internal/testpb hand-writes a couple for the test suite.
type Registrant interface {
	ServiceName() string
	Methods() []MethodEntry
}
