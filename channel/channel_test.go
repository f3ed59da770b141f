package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"prpc/message"
	"prpc/protocol"
	"prpc/service"
)

// startEchoBackend listens on an ephemeral port and echoes every request
// body back with ErrorCode 0.
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

// startSilentBackend accepts connections and reads a request frame but
// never responds, used to hold a call open for admission-control tests.
func startSilentBackend(t *testing.T) (addr string, stop func()) {
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
				_, _, _ = protocol.ReadRequestFrame(c, protocol.DefaultMaxFrameBytes)
				select {}
			}(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestChannelCallRoundTrip(t *testing.T) {
	addr, stop := startEchoBackend(t)
	defer stop()

	ch := New([]string{addr}, Options{})
	defer ch.Close()

	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	respMeta, body, err := ch.Call(context.Background(), meta, []byte("hello"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if respMeta.ErrorCode != 0 {
		t.Fatalf("got ErrorCode %d, want 0", respMeta.ErrorCode)
	}
	if string(body) != "hello" {
		t.Fatalf("got body %q, want %q", body, "hello")
	}
}

func TestChannelNoHealthyBackend(t *testing.T) {
	ch := New(nil, Options{})
	defer ch.Close()

	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	_, _, err := ch.Call(context.Background(), meta, []byte("x"))
	me, ok := err.(*service.MethodError)
	if !ok || me.Kind != service.NoHealthyBackend {
		t.Fatalf("got %v, want NoHealthyBackend", err)
	}
}

func TestChannelConcurrencyLimited(t *testing.T) {
	addr, stop := startSilentBackend(t)
	defer stop()

	ch := New([]string{addr}, Options{MaxConcurrency: 1})
	defer ch.Close()

	started := make(chan struct{})
	go func() {
		meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
		close(started)
		ch.Call(context.Background(), meta, []byte("x"))
	}()
	<-started
	time.Sleep(50 * time.Millisecond)

	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	_, _, err := ch.Call(context.Background(), meta, []byte("y"))
	me, ok := err.(*service.MethodError)
	if !ok || me.Kind != service.ChannelConcurrencyLimited {
		t.Fatalf("got %v, want ChannelConcurrencyLimited", err)
	}
}

func TestChannelCallWithDeadlineTimesOut(t *testing.T) {
	addr, stop := startSilentBackend(t)
	defer stop()

	ch := New([]string{addr}, Options{})
	defer ch.Close()

	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	_, _, err := ch.CallWithDeadline(context.Background(), time.Now().Add(50*time.Millisecond), meta, []byte("x"))
	me, ok := err.(*service.MethodError)
	if !ok || me.Kind != service.Timeout {
		t.Fatalf("got %v, want Timeout", err)
	}
}

func TestChannelUpdateBackendsPreservesObjects(t *testing.T) {
	addr, stop := startEchoBackend(t)
	defer stop()

	ch := New([]string{addr}, Options{})
	defer ch.Close()

	before := ch.snapshotBackends()
	if len(before) != 1 {
		t.Fatalf("got %d backends, want 1", len(before))
	}

	ch.UpdateBackends([]string{addr})
	after := ch.snapshotBackends()
	if len(after) != 1 || after[0] != before[0] {
		t.Fatal("UpdateBackends should preserve the Backend object for a surviving address")
	}
}

func TestChannelCallWithRetryFailsOverToHealthyBackend(t *testing.T) {
	badLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	badAddr := badLn.Addr().String()
	badLn.Close() // closed immediately: connecting to it fails

	goodAddr, stop := startEchoBackend(t)
	defer stop()

	// The default RoundRobin's first pick is backends[1], so the first
	// attempt lands on badAddr and the retry moves on to goodAddr.
	ch := New([]string{goodAddr, badAddr}, Options{})
	defer ch.Close()

	meta := &message.RpcRequestMeta{ServiceName: "Echo", MethodName: "Echo"}
	_, body, err := ch.CallWithRetry(context.Background(), meta, []byte("retry-me"), RetryPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("CallWithRetry: %v", err)
	}
	if string(body) != "retry-me" {
		t.Fatalf("got body %q", body)
	}
}
