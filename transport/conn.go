// Package transport implements the client-side connection driver: one
// multiplexed connection to a backend, a pending-table keyed by sequence
// id, and a dedicated read loop that routes replies back to their caller.
//
// This generalizes the teacher's transport/client_transport.go (which kept
// a sync.Map of uint32 -> chan *message.RPCMessage) to the binary protocol
// and RpcResponseMeta of SPEC_FULL.md, and owns exactly the "per-connection
// table sequence_id -> pending_completer" invariant from §3.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"prpc/message"
	"prpc/protocol"
)

// ErrConnectionLost is delivered to every pending completer when the
// connection's read loop observes an I/O error (§4.7 Reconnection).
var ErrConnectionLost = errors.New("transport: connection lost")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: connection closed")

// Result is what a pending call's completer resolves to.
type Result struct {
	Meta *message.RpcResponseMeta
	Body []byte
	Err  error
}

// Conn is one multiplexed client connection to a single backend address.
// Writes are serialized through writeMu (§5: "writes are serialized (FIFO
// by caller arrival into the write queue)"); the pending table is owned
// exclusively by this Conn's read loop and Send/Cancel callers under mu.
type Conn struct {
	address       string
	conn          net.Conn
	maxFrameBytes uint32
	log           *zap.SugaredLogger

	seq atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan Result
	closed  bool
}

// Dial opens a new connection and starts its read loop.
func Dial(ctx context.Context, address string, maxFrameBytes uint32, log *zap.SugaredLogger) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Conn{
		address:       address,
		conn:          nc,
		maxFrameBytes: maxFrameBytes,
		log:           log,
		pending:       make(map[uint64]chan Result),
	}
	go c.readLoop()
	return c, nil
}

// NextSequenceID returns a sequence id unique to this connection, per §4.7
// step 3: "Acquire a monotonically increasing sequence_id local to the
// chosen connection."
func (c *Conn) NextSequenceID() uint64 {
	return c.seq.Add(1)
}

// Address returns the backend address this connection was dialed to.
func (c *Conn) Address() string { return c.address }

// Send registers the pending entry and writes the request frame, in that
// order (§4.7 step 3: "insert (sequence_id -> completer) into its pending
// table before writing"). The returned channel receives exactly one Result.
func (c *Conn) Send(meta *message.RpcRequestMeta, body []byte) (<-chan Result, error) {
	ch := make(chan Result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[meta.SequenceId] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := protocol.WriteRequest(c.conn, meta, body)
	c.writeMu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, meta.SequenceId)
		c.mu.Unlock()
		return nil, fmt.Errorf("transport: write request: %w", err)
	}
	return ch, nil
}

// Cancel removes a pending entry without waiting for its reply — used when
// a caller drops its call future (§5 Cancellation). The server will still
// complete the method; the reply is simply discarded on arrival since it's
// no longer in the pending table.
func (c *Conn) Cancel(sequenceID uint64) {
	c.mu.Lock()
	delete(c.pending, sequenceID)
	c.mu.Unlock()
}

// PendingCount reports the number of outstanding entries, for tests of the
// sequence-correlation invariant.
func (c *Conn) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) readLoop() {
	r := bufio.NewReader(c.conn)
	for {
		meta, body, err := protocol.ReadResponseFrame(r, c.maxFrameBytes)
		if err != nil {
			c.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[meta.SequenceId]
		if ok {
			delete(c.pending, meta.SequenceId)
		}
		c.mu.Unlock()

		if !ok {
			// Already cancelled, or a stray reply; drop it.
			continue
		}
		ch <- Result{Meta: meta, Body: body}
	}
}

func (c *Conn) failAll(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan Result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- Result{Err: err}
	}
	_ = c.conn.Close()
	c.log.Debugw("connection closed", "address", c.address, "reason", err)
}

// Close closes the connection and fails every pending call with ErrClosed.
func (c *Conn) Close() error {
	c.failAll(ErrClosed)
	return nil
}
