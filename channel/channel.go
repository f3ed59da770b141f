// Package channel implements the client-side multiplexed, concurrency-
// limited, load-balanced caller described in SPEC_FULL.md §4.7 — the
// hardest component in the system. It generalizes the teacher's
// client/client.go + transport/client_transport.go (which kept one
// *ClientTransport per address behind a round-robin pool) into the
// admission-controlled, backend-health-aware Channel the spec names.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"prpc/loadbalance"
	"prpc/message"
	"prpc/protocol"
	"prpc/service"
	"prpc/transport"
)

// Options configures a Channel. Zero values are replaced by the defaults
// named in SPEC_FULL.md §6.
type Options struct {
	MaxConcurrency uint32
	ConnectTimeout time.Duration
	RequestTimeout time.Duration // 0 means none
	Balancer       loadbalance.Balancer
	MaxFrameBytes  uint32
	Logger         *zap.SugaredLogger
}

func (o *Options) setDefaults() {
	if o.MaxConcurrency == 0 {
		o.MaxConcurrency = 1000
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.Balancer == nil {
		o.Balancer = &loadbalance.RoundRobin{}
	}
	if o.MaxFrameBytes == 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// Channel is a long-lived handle shared by many concurrent callers. It
// owns an ordered set of backends, at most one live connection per
// backend, a global in-flight counter enforcing MaxConcurrency, and a
// load-balancer handle.
type Channel struct {
	opts Options
	log  *zap.SugaredLogger

	backendsMu    sync.RWMutex
	backends      []*loadbalance.Backend
	nextBackendID atomic.Int64

	connsMu sync.Mutex
	conns   map[int]*transport.Conn

	inFlight atomic.Int64
	closed   atomic.Bool
}

// New constructs a Channel over a static list of backend addresses.
func New(addresses []string, opts Options) *Channel {
	opts.setDefaults()
	ch := &Channel{
		opts:  opts,
		log:   opts.Logger,
		conns: make(map[int]*transport.Conn),
	}
	ch.UpdateBackends(addresses)
	return ch
}

// UpdateBackends replaces the channel's backend set, preserving existing
// Backend objects (and their accumulated health stats) for addresses that
// survive, and closing connections for addresses that are dropped. This is
// the hook registry.Registry.Watch feeds (SPEC_FULL.md §4.10); the channel
// itself performs no discovery, only consumes the static list it's given.
func (ch *Channel) UpdateBackends(addresses []string) {
	ch.backendsMu.Lock()
	existing := make(map[string]*loadbalance.Backend, len(ch.backends))
	for _, b := range ch.backends {
		existing[b.Address] = b
	}
	next := make([]*loadbalance.Backend, 0, len(addresses))
	keep := make(map[int]bool, len(addresses))
	for _, addr := range addresses {
		if b, ok := existing[addr]; ok {
			next = append(next, b)
			keep[b.ID] = true
			continue
		}
		id := int(ch.nextBackendID.Add(1))
		b := loadbalance.NewBackend(id, addr)
		next = append(next, b)
		keep[b.ID] = true
	}
	ch.backends = next
	ch.backendsMu.Unlock()

	ch.connsMu.Lock()
	for id, conn := range ch.conns {
		if !keep[id] {
			delete(ch.conns, id)
			go conn.Close()
		}
	}
	ch.connsMu.Unlock()
}

func (ch *Channel) snapshotBackends() []*loadbalance.Backend {
	ch.backendsMu.RLock()
	defer ch.backendsMu.RUnlock()
	out := make([]*loadbalance.Backend, len(ch.backends))
	copy(out, ch.backends)
	return out
}

// InFlight returns the current number of admitted, not-yet-terminal calls.
func (ch *Channel) InFlight() int64 { return ch.inFlight.Load() }

// Congested reports whether the channel is within 10% of its concurrency
// cap, per SPEC_FULL.md §4.7.
func (ch *Channel) Congested() bool {
	return float64(ch.inFlight.Load()) >= 0.9*float64(ch.opts.MaxConcurrency)
}

func (ch *Channel) tryAcquire() bool {
	for {
		cur := ch.inFlight.Load()
		if cur >= int64(ch.opts.MaxConcurrency) {
			return false
		}
		if ch.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (ch *Channel) release() { ch.inFlight.Add(-1) }

// Call performs one RPC: admission control, backend selection, sequence
// assignment, write, await, completion feedback — SPEC_FULL.md §4.7 steps
// 1-6 in order. meta.ServiceName/MethodName must be set; SequenceId is
// overwritten with one local to the chosen connection.
func (ch *Channel) Call(ctx context.Context, meta *message.RpcRequestMeta, body []byte) (*message.RpcResponseMeta, []byte, error) {
	if !ch.tryAcquire() {
		return nil, nil, &service.MethodError{Kind: service.ChannelConcurrencyLimited}
	}
	defer ch.release()

	startUsec := time.Now().UnixMicro()
	var backend *loadbalance.Backend
	var success bool
	var failureText string
	defer func() {
		if backend != nil {
			info := loadbalance.NewCallInfo(startUsec).Finish(time.Now().UnixMicro(), success, failureText)
			backend.RecordOutcome(info)
		}
	}()

	backend, err := ch.opts.Balancer.Select(time.Now(), ch.snapshotBackends())
	if err != nil {
		failureText = err.Error()
		return nil, nil, &service.MethodError{Kind: service.NoHealthyBackend, Text: err.Error()}
	}

	conn, err := ch.connFor(ctx, backend)
	if err != nil {
		failureText = err.Error()
		return nil, nil, &service.MethodError{Kind: service.ConnectionLost, Text: err.Error()}
	}

	seq := conn.NextSequenceID()
	meta.SequenceId = seq
	resultCh, err := conn.Send(meta, body)
	if err != nil {
		ch.dropConn(backend.ID, conn)
		failureText = err.Error()
		return nil, nil, &service.MethodError{Kind: service.ConnectionLost, Text: err.Error()}
	}

	deadlineCh, cancelTimer := ch.requestDeadline(ctx)
	defer cancelTimer()

	select {
	case res := <-resultCh:
		if res.Err != nil {
			ch.dropConn(backend.ID, conn)
			failureText = res.Err.Error()
			return nil, nil, &service.MethodError{Kind: service.ConnectionLost, Text: res.Err.Error()}
		}
		if res.Meta.ErrorCode != 0 {
			failureText = res.Meta.ErrorText
			return res.Meta, res.Body, translateResponseError(res.Meta)
		}
		success = true
		return res.Meta, res.Body, nil
	case <-deadlineCh:
		conn.Cancel(seq)
		failureText = "timeout"
		return nil, nil, &service.MethodError{Kind: service.Timeout}
	case <-ctx.Done():
		conn.Cancel(seq)
		failureText = ctx.Err().Error()
		return nil, nil, ctx.Err()
	}
}

// CallWithDeadline is Call with an explicit deadline layered onto ctx,
// per SPEC_FULL.md §5 ("the channel exposes call_with_deadline(deadline);
// on deadline expiry the call fails with Timeout").
func (ch *Channel) CallWithDeadline(ctx context.Context, deadline time.Time, meta *message.RpcRequestMeta, body []byte) (*message.RpcResponseMeta, []byte, error) {
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	respMeta, respBody, err := ch.Call(dctx, meta, body)
	if err != nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		return respMeta, respBody, &service.MethodError{Kind: service.Timeout}
	}
	return respMeta, respBody, err
}

func (ch *Channel) requestDeadline(ctx context.Context) (<-chan time.Time, func()) {
	if ch.opts.RequestTimeout <= 0 {
		return nil, func() {}
	}
	timer := time.NewTimer(ch.opts.RequestTimeout)
	return timer.C, func() { timer.Stop() }
}

func (ch *Channel) connFor(ctx context.Context, backend *loadbalance.Backend) (*transport.Conn, error) {
	ch.connsMu.Lock()
	conn, ok := ch.conns[backend.ID]
	ch.connsMu.Unlock()
	if ok {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, ch.opts.ConnectTimeout)
	defer cancel()
	newConn, err := transport.Dial(dialCtx, backend.Address, ch.opts.MaxFrameBytes, ch.log)
	if err != nil {
		return nil, err
	}

	ch.connsMu.Lock()
	if existing, ok := ch.conns[backend.ID]; ok {
		ch.connsMu.Unlock()
		_ = newConn.Close()
		return existing, nil
	}
	ch.conns[backend.ID] = newConn
	ch.connsMu.Unlock()
	return newConn, nil
}

func (ch *Channel) dropConn(backendID int, conn *transport.Conn) {
	ch.connsMu.Lock()
	if existing, ok := ch.conns[backendID]; ok && existing == conn {
		delete(ch.conns, backendID)
	}
	ch.connsMu.Unlock()
}

// Close closes every live connection. Pending calls fail, via their
// connection's failAll path, with a ConnectionLost MethodError whose text is
// transport.ErrClosed's.
func (ch *Channel) Close() error {
	if !ch.closed.CompareAndSwap(false, true) {
		return nil
	}
	ch.connsMu.Lock()
	conns := ch.conns
	ch.conns = make(map[int]*transport.Conn)
	ch.connsMu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
	return nil
}

func translateResponseError(meta *message.RpcResponseMeta) *service.MethodError {
	return &service.MethodError{
		Kind: service.KindFromErrorCode(meta.ErrorCode),
		Code: int(meta.ErrorCode),
		Text: meta.ErrorText,
	}
}
