// Package server implements the RPC server: per-connection protocol
// detection, a pipelined binary-protocol driver, an HTTP/1.1 driver, a
// middleware chain wrapping dispatcher lookup+invoke, and graceful
// shutdown — the Go shape of copra::server (_examples/original_source).
//
// This generalizes the teacher's server/server.go (which spoke one
// length-prefixed JSON/gob protocol and dispatched via reflection over a
// registered struct) to the binary+HTTP dual protocol and
// dispatcher.Dispatcher-driven lookup of SPEC_FULL.md §4.5, keeping its
// accept-loop/per-connection-goroutine/write-mutex shape.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"prpc/controller"
	"prpc/dispatcher"
	"prpc/message"
	"prpc/middleware"
	"prpc/protocol"
	"prpc/registry"
	"prpc/service"
)

// Options configures a Server. Zero values fall back to the defaults named
// in SPEC_FULL.md §6.
type Options struct {
	MaxFrameBytes      uint32
	MaxInFlightPerConn int
	Threads            int // acceptor goroutines; 0 means runtime.NumCPU()
	Logger             *zap.SugaredLogger
}

func (o *Options) setDefaults() {
	if o.MaxFrameBytes == 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	if o.MaxInFlightPerConn == 0 {
		o.MaxInFlightPerConn = 128
	}
	if o.Threads == 0 {
		o.Threads = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// Server drives one listening socket, dispatching binary and HTTP/1.1
// connections alike through the same dispatcher and middleware chain.
type Server struct {
	opts       Options
	log        *zap.SugaredLogger
	dispatcher *dispatcher.Dispatcher

	middlewares []middleware.Middleware
	handler     middleware.Handler

	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool

	registry      registry.Registry
	advertiseAddr string

	throughput atomic.Uint64
}

// New creates a Server driving d. Use Use to install middleware before Serve.
func New(d *dispatcher.Dispatcher, opts Options) *Server {
	opts.setDefaults()
	s := &Server{opts: opts, log: opts.Logger, dispatcher: d}
	s.handler = s.businessHandler
	return s
}

// Use registers a middleware, applied in the order added (outermost first).
// Must be called before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and runs Options.Threads acceptor goroutines
// against the one listener until it is closed by Shutdown — SPEC_FULL.md
// §4.6's "accept loop over threads goroutines reading off one listener ...
// N goroutines each calling Accept". net.Listener.Accept is safe to call
// concurrently, so this is a plain fan-out: each acceptor hands its
// accepted connection off to its own per-connection goroutine, same as the
// teacher's single-acceptor server.go did for every connection it accepted.
// advertiseAddr, if reg is non-nil, is the address registered for every
// service the dispatcher knows about (it differs from the listen address
// when address is a wildcard like ":8080").
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.handler = middleware.Chain(s.middlewares...)(s.businessHandler)

	s.advertiseAddr = advertiseAddr
	if reg != nil {
		s.registry = reg
		for _, name := range s.dispatcher.ServiceNames() {
			if err := reg.Register(name, registry.ServiceInstance{Addr: advertiseAddr}, 10); err != nil {
				s.log.Warnw("registry register failed", "service", name, "error", err)
			}
		}
	}

	var acceptWg sync.WaitGroup
	var errOnce sync.Once
	var firstErr error
	acceptWg.Add(s.opts.Threads)
	for i := 0; i < s.opts.Threads; i++ {
		go func() {
			defer acceptWg.Done()
			s.acceptLoop(listener, &errOnce, &firstErr)
		}()
	}
	acceptWg.Wait()
	return firstErr
}

// acceptLoop is run by each of Options.Threads acceptor goroutines. The
// first non-shutdown Accept error closes the listener so every other
// acceptor unblocks and returns too.
func (s *Server) acceptLoop(listener net.Listener, errOnce *sync.Once, firstErr *error) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !s.shutdown.Load() {
				errOnce.Do(func() {
					*firstErr = err
					_ = listener.Close()
				})
			}
			return
		}
		go s.handleConn(conn)
	}
}

// Throughput returns the number of requests completed since startup, the
// counter the HTTP metric surface (S4) reads.
func (s *Server) Throughput() uint64 { return s.throughput.Load() }

// Shutdown deregisters every service, stops accepting connections, and
// waits up to timeout for in-flight requests to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.registry != nil {
		for _, name := range s.dispatcher.ServiceNames() {
			_ = s.registry.Deregister(name, s.advertiseAddr)
		}
	}
	s.shutdown.Store(true)
	_ = s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for in-flight requests")
	}
}

func (s *Server) businessHandler(ctx context.Context, serviceName, methodName string, in message.Bundle) (message.Bundle, *service.MethodError) {
	method, ok := s.dispatcher.Lookup(serviceName, methodName)
	if !ok {
		return message.Bundle{Controller: in.Controller}, service.NotFound(serviceName, methodName)
	}
	return method.Call(ctx, in)
}

// handleConn peeks the connection's leading bytes to pick binary vs HTTP,
// per SPEC_FULL.md §4.3, then hands off to the matching driver loop.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	peeked, _ := r.Peek(protocol.DetectPeekBytes)
	if len(peeked) == 0 {
		return
	}
	switch protocol.Detect(peeked) {
	case protocol.Binary:
		s.serveBinary(conn, r)
	case protocol.HTTP:
		s.serveHTTP(conn, r)
	default:
		s.log.Debugw("unrecognized protocol, closing connection", "remote", conn.RemoteAddr())
	}
}

// serveBinary reads requests sequentially (reads must stay on one goroutine
// to track frame boundaries) but dispatches each to its own goroutine,
// bounded by MaxInFlightPerConn, so a slow call never head-of-line blocks
// the rest of the connection. Responses are written in completion order —
// the client correlates them by sequence id, not position — under a shared
// write mutex to prevent interleaving frames.
func (s *Server) serveBinary(conn net.Conn, r *bufio.Reader) {
	writeMu := &sync.Mutex{}
	sem := make(chan struct{}, s.opts.MaxInFlightPerConn)
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	for {
		meta, body, err := protocol.ReadRequestFrame(r, s.opts.MaxFrameBytes)
		if err != nil {
			return
		}

		sem <- struct{}{}
		inFlight.Add(1)
		s.wg.Add(1)
		go func(meta *message.RpcRequestMeta, body []byte) {
			defer func() { <-sem; inFlight.Done(); s.wg.Done() }()
			s.handleBinaryRequest(conn, writeMu, meta, body)
		}(meta, body)
	}
}

func (s *Server) handleBinaryRequest(conn net.Conn, writeMu *sync.Mutex, meta *message.RpcRequestMeta, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic handling request, closing connection", "service", meta.ServiceName, "method", meta.MethodName, "panic", r)
			_ = conn.Close()
		}
	}()

	ctrl := controller.New(remoteAddrOf(conn), nil)
	out, methodErr := s.handler(context.Background(), meta.ServiceName, meta.MethodName, message.Bundle{Payload: body, Controller: ctrl})
	s.throughput.Add(1)

	respMeta := &message.RpcResponseMeta{SequenceId: meta.SequenceId}
	respBody := out.Payload
	if methodErr != nil {
		respMeta.ErrorCode = service.ErrorCodeForKind(methodErr.Kind)
		respMeta.ErrorText = methodErr.Text
		respBody = nil
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.WriteResponse(conn, respMeta, respBody); err != nil {
		s.log.Debugw("write response failed", "error", err)
	}
}

// serveHTTP handles one connection's HTTP/1.1 requests in arrival order —
// no pipelining, matching what net/http.ReadRequest's blocking model
// naturally gives — looping while the client keeps the connection alive.
func (s *Server) serveHTTP(conn net.Conn, r *bufio.Reader) {
	for {
		req, err := protocol.ReadHTTPRequest(r, remoteAddrOf(conn))
		if err != nil {
			return
		}

		s.wg.Add(1)
		s.handleHTTPRequest(conn, req)
		s.wg.Done()

		if !req.KeepAlive {
			return
		}
	}
}

func (s *Server) handleHTTPRequest(conn net.Conn, req *protocol.HTTPRequest) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic handling http request, closing connection", "service", req.ServiceName, "method", req.MethodName, "panic", r)
			_ = protocol.WriteHTTPError(conn, http.StatusInternalServerError, "internal error")
		}
	}()

	out, methodErr := s.handler(context.Background(), req.ServiceName, req.MethodName, message.Bundle{Payload: req.Body, Controller: req.Controller})
	s.throughput.Add(1)
	if methodErr != nil {
		_ = protocol.WriteHTTPError(conn, httpStatusForError(methodErr), methodErr.Error())
		return
	}
	if err := protocol.WriteHTTPResponse(conn, out.Payload, out.Controller); err != nil {
		s.log.Debugw("write http response failed", "error", err)
	}
}

func httpStatusForError(methodErr *service.MethodError) int {
	switch methodErr.Kind {
	case service.CodecError:
		return http.StatusBadRequest
	case service.Timeout:
		return http.StatusGatewayTimeout
	case service.HttpError:
		if methodErr.Code != 0 {
			return methodErr.Code
		}
		return http.StatusInternalServerError
	case service.ServerError:
		if methodErr.Code == 1 { // service.NotFound's sentinel code
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func remoteAddrOf(conn net.Conn) string {
	if conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
