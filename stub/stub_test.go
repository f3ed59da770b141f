package stub

import (
	"context"
	"net"
	"testing"

	"prpc/channel"
	"prpc/internal/testpb"
	"prpc/message"
	"prpc/protocol"
	"prpc/service"
)

func startEchoBackend(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					meta, body, err := protocol.ReadRequestFrame(c, protocol.DefaultMaxFrameBytes)
					if err != nil {
						return
					}
					resp := &message.RpcResponseMeta{SequenceId: meta.SequenceId}
					if err := protocol.WriteResponse(c, resp, body); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func startFailingBackend(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				meta, _, err := protocol.ReadRequestFrame(c, protocol.DefaultMaxFrameBytes)
				if err != nil {
					return
				}
				resp := &message.RpcResponseMeta{
					SequenceId: meta.SequenceId,
					ErrorCode:  service.ErrorCodeForKind(service.ServerError),
					ErrorText:  "boom",
				}
				_ = protocol.WriteResponse(c, resp, nil)
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestStubCallRoundTrip(t *testing.T) {
	addr, stop := startEchoBackend(t)
	defer stop()

	ch := channel.New([]string{addr}, channel.Options{})
	defer ch.Close()

	s := New[testpb.StringMessage, testpb.StringMessage](ch, "Echo", "Echo", testpb.Codec(), testpb.Codec())
	resp, info, err := s.Call(context.Background(), testpb.StringMessage{Value: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Value != "hi" {
		t.Fatalf("got %q, want %q", resp.Value, "hi")
	}
	if info.ServiceName != "Echo" || info.MethodName != "Echo" {
		t.Fatalf("got RpcInfo %+v", info)
	}
}

func TestStubCallSurfacesServerError(t *testing.T) {
	addr, stop := startFailingBackend(t)
	defer stop()

	ch := channel.New([]string{addr}, channel.Options{})
	defer ch.Close()

	s := New[testpb.StringMessage, testpb.StringMessage](ch, "Echo", "Fail", testpb.Codec(), testpb.Codec())
	_, _, err := s.Call(context.Background(), testpb.StringMessage{Value: "hi"})
	me, ok := err.(*service.MethodError)
	if !ok || me.Kind != service.ServerError {
		t.Fatalf("got %v, want ServerError", err)
	}
}
