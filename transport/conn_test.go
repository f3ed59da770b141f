package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"prpc/message"
	"prpc/protocol"
)

// echoServer accepts one connection and echoes every request frame back as
// a response frame with the same sequence id and body.
func echoServer(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			meta, body, err := protocol.ReadRequestFrame(conn, protocol.DefaultMaxFrameBytes)
			if err != nil {
				return
			}
			resp := &message.RpcResponseMeta{SequenceId: meta.SequenceId}
			if err := protocol.WriteResponse(conn, resp, body); err != nil {
				return
			}
		}
	}()
}

func TestConnSendReceivesMatchingResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoServer(t, ln)

	conn, err := Dial(context.Background(), ln.Addr().String(), protocol.DefaultMaxFrameBytes, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	seq := conn.NextSequenceID()
	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo", SequenceId: seq}
	resultCh, err := conn.Send(meta, []byte("hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			t.Fatalf("result error: %v", res.Err)
		}
		if res.Meta.SequenceId != seq {
			t.Fatalf("got sequence id %d, want %d", res.Meta.SequenceId, seq)
		}
		if string(res.Body) != "hello" {
			t.Fatalf("got body %q", res.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestConnCancelDropsPendingEntry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	echoServer(t, ln)

	conn, err := Dial(context.Background(), ln.Addr().String(), protocol.DefaultMaxFrameBytes, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	seq := conn.NextSequenceID()
	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo", SequenceId: seq}
	if _, err := conn.Send(meta, []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	conn.Cancel(seq)
	if got := conn.PendingCount(); got != 0 {
		t.Fatalf("got PendingCount %d, want 0", got)
	}
}

func TestConnFailsAllPendingOnConnectionLoss(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	conn, err := Dial(context.Background(), ln.Addr().String(), protocol.DefaultMaxFrameBytes, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	serverSide := <-accepted
	seq := conn.NextSequenceID()
	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo", SequenceId: seq}
	resultCh, err := conn.Send(meta, []byte("x"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	serverSide.Close()
	ln.Close()

	select {
	case res := <-resultCh:
		if res.Err == nil {
			t.Fatal("expected a connection-lost error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection-lost result")
	}
}
