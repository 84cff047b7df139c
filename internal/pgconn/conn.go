// Package pgconn implements spec.md §4.4: a connection owning a byte
// stream, read buffer, write scratch buffer, and protocol state
// (ready-for-query, parameter statuses, backend key data). It is the Go
// analog of the teacher's internal/pool/conn.go PooledConn, generalized
// from "pool bookkeeping over an opaque relayed connection" to "typed
// message I/O state over a protocol connection".
package pgconn

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/elefantsql/elefant/internal/protocol"
	"github.com/elefantsql/elefant/internal/wire"
)

// BackendKeyData is captured during startup for CancelRequest use,
// spec.md §4.4/§4.5.
type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

// Conn owns one PostgreSQL wire connection. Not safe for concurrent use
// from multiple goroutines — spec.md §5's "no cross-task sharing" per
// connection.
type Conn struct {
	netConn net.Conn
	r       *wire.Reader
	w       *wire.Writer

	readyForQuery bool
	params        map[string]string
	backendKey    *BackendKeyData

	// closed marks the connection untrusted after an I/O error or a
	// context cancellation mid-stream, per spec.md §5: "if a task is
	// dropped mid-stream, its connection is untrusted and must be closed
	// rather than returned to any pool."
	closed bool
}

// New wraps an already-established net.Conn. Establishing the TCP/TLS
// connection itself is the host's responsibility (spec.md §1: TLS
// negotiation out of scope); New only takes ownership of wire framing.
func New(nc net.Conn) *Conn {
	br := bufio.NewReaderSize(nc, 8192)
	bw := bufio.NewWriterSize(nc, 8192)
	return &Conn{
		netConn: nc,
		r:       wire.NewReader(br),
		w:       wire.NewWriter(bw),
		params:  make(map[string]string),
	}
}

// ReadBackendMessage decodes exactly one backend message, per spec.md
// §4.4. The returned message may alias the connection's internal read
// buffer until the next call to ReadBackendMessage — callers that must
// retain values past that point should copy them first.
func (c *Conn) ReadBackendMessage(ctx context.Context) (protocol.BackendMessage, error) {
	if c.closed {
		return nil, fmt.Errorf("pgconn: connection is closed")
	}
	type result struct {
		msg protocol.BackendMessage
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := wire.ReadFrame(c.r, protocol.DecodeBackendMessage)
		done <- result{msg, err}
	}()
	select {
	case <-ctx.Done():
		c.Abandon()
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			c.Abandon()
			return nil, res.err
		}
		c.trackState(res.msg)
		return res.msg, nil
	}
}

func (c *Conn) trackState(msg protocol.BackendMessage) {
	switch m := msg.(type) {
	case protocol.ParameterStatus:
		c.params[m.Name] = m.Value
	case protocol.BackendKeyData:
		c.backendKey = &BackendKeyData{ProcessID: m.ProcessID, SecretKey: m.SecretKey}
	case protocol.ReadyForQuery:
		c.readyForQuery = true
	}
}

// WriteFrontendMessage buffers msg for the next Flush; it does not itself
// reach the wire until Flush completes, per spec.md §4.4's ordering
// guarantee.
func WriteFrontendMessage[T any](c *Conn, msg T, encode wire.Encoder[T]) error {
	if c.closed {
		return fmt.Errorf("pgconn: connection is closed")
	}
	if err := wire.WriteFrame(c.w, msg, encode); err != nil {
		c.Abandon()
		return err
	}
	c.readyForQuery = false
	return nil
}

// WriteRaw writes pre-encoded bytes directly, bypassing the scratch
// buffer, for a caller that already holds complete frames. The COPY path
// in internal/pgclient does not use it: it sends each CopyData through
// WriteFrontendMessage.
func (c *Conn) WriteRaw(buf []byte) error {
	if c.closed {
		return fmt.Errorf("pgconn: connection is closed")
	}
	if err := c.w.WriteBytes(buf); err != nil {
		c.Abandon()
		return err
	}
	return nil
}

// Flush flushes all buffered frontend messages to the wire.
func (c *Conn) Flush() error {
	if err := c.w.Flush(); err != nil {
		c.Abandon()
		return err
	}
	return nil
}

// ReadyForQuery reports whether the backend's ReadyForQuery is the most
// recent state observed — the sole synchronization point per spec.md §5
// that gates sending the next query.
func (c *Conn) ReadyForQuery() bool { return c.readyForQuery }

// ParameterStatus returns a previously observed GUC value, if any.
func (c *Conn) ParameterStatus(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// BackendKey returns the process/secret key pair captured during startup,
// used by a host to build a CancelRequest on a second connection
// (spec.md §4.5 "Cancellation and timeouts").
func (c *Conn) BackendKey() (BackendKeyData, bool) {
	if c.backendKey == nil {
		return BackendKeyData{}, false
	}
	return *c.backendKey, true
}

// NetConn exposes the underlying net.Conn, e.g. so a host can perform the
// SSL/GSSENC handshake itself (spec.md §1) before wrapping the upgraded
// stream in a new Conn.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// Abandon marks the connection untrusted and closes it, per spec.md §5's
// cancellation contract: a connection touched by an I/O error or
// mid-stream cancellation must never be returned to a pool.
func (c *Conn) Abandon() {
	if c.closed {
		return
	}
	c.closed = true
	c.netConn.Close()
}

// Close is an alias for Abandon when a caller is done with the connection
// in the ordinary (non-error) case too — pgclient always closes rather
// than pools connections, since pooling is out of this spec's scope.
func (c *Conn) Close() error {
	c.Abandon()
	return nil
}
