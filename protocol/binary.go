// Package protocol implements the wire framing and header parsing named in
// SPEC_FULL.md §4.3: a length-prefixed binary RPC protocol and an HTTP/1.1
// protocol, multiplexed on the same listening socket via prefix detection.
//
// Frame layout (binary protocol):
//
//	[magic: 4 bytes "PRPC"][body_len: u32 BE][meta_len: u32 BE][meta][body]
//
// meta is protobuf-encoded RpcRequestMeta or RpcResponseMeta (message
// package); which one depends on which side of the connection is reading
// (a server only ever reads requests, a client only ever reads
// responses) — the frame itself carries no direction tag, matching the
// wire contract in SPEC_FULL.md §6.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"prpc/message"
)

const (
	// Magic identifies a binary-protocol frame.
	Magic = "PRPC"
	// HeaderLen is magic(4) + body_len(4) + meta_len(4).
	HeaderLen = 4 + 4 + 4
	// DefaultMaxFrameBytes is the default ceiling on 4+4+4+meta_len+body_len.
	DefaultMaxFrameBytes uint32 = 64 << 20
	// DetectPeekBytes is how many leading bytes protocol detection inspects.
	DetectPeekBytes = 16
)

// ParseKind is the tagged union SPEC_FULL.md calls ParseOutcome.
type ParseKind int

const (
	Incomplete ParseKind = iota
	FrameReady
	Malformed
)

// RawFrame is a fully-validated frame's meta and body, as slices into the
// caller-owned buffer passed to TryParse — zero-copy; the caller must copy
// out before reusing or advancing that buffer.
type RawFrame struct {
	MetaBytes []byte
	Body      []byte
	Consumed  int
}

// ParseResult is the result of TryParse.
type ParseResult struct {
	Kind  ParseKind
	Frame RawFrame
	Err   error
}

// TryParse attempts to parse one frame from the head of buf without
// consuming from any I/O source itself. It never commits (returns
// FrameReady for) bytes it has not fully validated: on Incomplete, the
// caller must read more bytes and retry with a longer buffer.
func TryParse(buf []byte, maxFrameBytes uint32) ParseResult {
	if maxFrameBytes == 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	if len(buf) < HeaderLen {
		return ParseResult{Kind: Incomplete}
	}
	if string(buf[0:4]) != Magic {
		return ParseResult{Kind: Malformed, Err: fmt.Errorf("protocol: bad magic %x", buf[0:4])}
	}
	bodyLen := binary.BigEndian.Uint32(buf[4:8])
	metaLen := binary.BigEndian.Uint32(buf[8:12])

	total := uint64(HeaderLen) + uint64(metaLen) + uint64(bodyLen)
	if total > uint64(maxFrameBytes) {
		return ParseResult{Kind: Malformed, Err: fmt.Errorf("protocol: frame size %d exceeds max_frame_bytes %d", total, maxFrameBytes)}
	}
	if uint64(len(buf)) < total {
		return ParseResult{Kind: Incomplete}
	}

	metaStart := HeaderLen
	metaEnd := metaStart + int(metaLen)
	bodyEnd := metaEnd + int(bodyLen)
	return ParseResult{
		Kind: FrameReady,
		Frame: RawFrame{
			MetaBytes: buf[metaStart:metaEnd:metaEnd],
			Body:      buf[metaEnd:bodyEnd:bodyEnd],
			Consumed:  int(total),
		},
	}
}

// WriteFrame appends a complete frame (header + meta + body) to w in a
// single Write call. Callers sharing a connection across goroutines must
// serialize calls to WriteFrame themselves (§5: writes on a connection are
// serialized by the caller, not by the protocol).
func WriteFrame(w io.Writer, metaBytes, body []byte) error {
	buf := make([]byte, HeaderLen, HeaderLen+len(metaBytes)+len(body))
	copy(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(body)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(metaBytes)))
	buf = append(buf, metaBytes...)
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// WriteRequest marshals meta and writes a complete request frame.
func WriteRequest(w io.Writer, meta *message.RpcRequestMeta, body []byte) error {
	metaBytes, err := meta.Marshal()
	if err != nil {
		return fmt.Errorf("protocol: marshal request meta: %w", err)
	}
	return WriteFrame(w, metaBytes, body)
}

// WriteResponse marshals meta and writes a complete response frame.
func WriteResponse(w io.Writer, meta *message.RpcResponseMeta, body []byte) error {
	metaBytes, err := meta.Marshal()
	if err != nil {
		return fmt.Errorf("protocol: marshal response meta: %w", err)
	}
	return WriteFrame(w, metaBytes, body)
}

// readFrame performs the blocking, io.ReadFull-based read a per-connection
// driver goroutine uses: read the fixed header, validate sizes against
// maxFrameBytes before allocating or reading another byte, then read
// exactly meta_len+body_len bytes. This is the goroutine-blocking
// equivalent of repeatedly calling TryParse as more bytes arrive — the
// natural idiom once I/O lives on its own goroutine instead of an event
// loop (see SPEC_FULL.md §9 design notes on coroutine-style control flow).
func readFrame(r io.Reader, maxFrameBytes uint32) (metaBytes, body []byte, err error) {
	if maxFrameBytes == 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	header := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, err
	}
	if string(header[0:4]) != Magic {
		return nil, nil, fmt.Errorf("protocol: bad magic %x", header[0:4])
	}
	bodyLen := binary.BigEndian.Uint32(header[4:8])
	metaLen := binary.BigEndian.Uint32(header[8:12])
	total := uint64(HeaderLen) + uint64(metaLen) + uint64(bodyLen)
	if total > uint64(maxFrameBytes) {
		return nil, nil, fmt.Errorf("protocol: frame size %d exceeds max_frame_bytes %d", total, maxFrameBytes)
	}

	metaBytes = make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaBytes); err != nil {
		return nil, nil, err
	}
	body = make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return metaBytes, body, nil
}

// ReadRequestFrame reads one request frame, blocking until it is fully
// available or an error (including a frame-size violation) occurs.
func ReadRequestFrame(r io.Reader, maxFrameBytes uint32) (*message.RpcRequestMeta, []byte, error) {
	metaBytes, body, err := readFrame(r, maxFrameBytes)
	if err != nil {
		return nil, nil, err
	}
	meta := &message.RpcRequestMeta{}
	if err := meta.Unmarshal(metaBytes); err != nil {
		return nil, nil, fmt.Errorf("protocol: unmarshal request meta: %w", err)
	}
	return meta, body, nil
}

// ReadResponseFrame reads one response frame, blocking until it is fully
// available or an error (including a frame-size violation) occurs.
func ReadResponseFrame(r io.Reader, maxFrameBytes uint32) (*message.RpcResponseMeta, []byte, error) {
	metaBytes, body, err := readFrame(r, maxFrameBytes)
	if err != nil {
		return nil, nil, err
	}
	meta := &message.RpcResponseMeta{}
	if err := meta.Unmarshal(metaBytes); err != nil {
		return nil, nil, fmt.Errorf("protocol: unmarshal response meta: %w", err)
	}
	return meta, body, nil
}
