package pgclient

import (
	"context"
	"fmt"
	"io"

	"github.com/elefantsql/elefant/internal/pgconn"
	"github.com/elefantsql/elefant/internal/protocol"
)

// CopyTo issues `sql` (expected to be a COPY ... TO STDOUT statement) and
// returns a stream of the server's raw COPY payload chunks, per spec.md
// §4.8's data-copy orchestrator pulling rows out of the source.
func (c *Client) CopyTo(ctx context.Context, sql string) (*CopyOutReader, error) {
	if err := c.drainActive(ctx); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Query{SQL: sql}, protocol.EncodeQuery); err != nil {
		return nil, err
	}
	if err := c.conn.Flush(); err != nil {
		return nil, err
	}

	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(protocol.CopyResponse)
	if !ok || resp.Kind != protocol.CopyOut {
		if em, ok := msg.(protocol.ErrorResponse); ok {
			c.drainToReadyForQuery(ctx)
			return nil, newServerError(em.Fields)
		}
		c.drainToReadyForQuery(ctx)
		return nil, &UnexpectedMessageError{Phase: "CopyOutResponse", Got: msg}
	}

	out := &CopyOutReader{client: c, ctx: ctx}
	c.active = out
	return out, nil
}

// CopyOutReader yields successive COPY payload chunks, per spec.md §4.8.
type CopyOutReader struct {
	client *Client
	ctx    context.Context
	err    error
	done   bool
}

// Next returns the next chunk of raw COPY data, or ok=false once the
// server has sent CopyDone and the statement has completed.
func (r *CopyOutReader) Next() ([]byte, bool, error) {
	if r.done {
		return nil, false, r.err
	}
	for {
		msg, err := r.client.conn.ReadBackendMessage(r.ctx)
		if err != nil {
			r.err = err
			return r.finish()
		}
		switch m := msg.(type) {
		case protocol.CopyData:
			return m.Bytes, true, nil
		case protocol.CopyDone:
			continue
		case protocol.CommandComplete:
			return r.finish()
		case protocol.ErrorResponse:
			r.err = newServerError(m.Fields)
			return r.finish()
		default:
			r.err = &UnexpectedMessageError{Phase: "CopyOut stream", Got: msg}
			return r.finish()
		}
	}
}

func (r *CopyOutReader) finish() ([]byte, bool, error) {
	r.done = true
	if err := r.client.drainToReadyForQuery(r.ctx); err != nil && r.err == nil {
		r.err = err
	}
	r.client.clearActive()
	return nil, false, r.err
}

func (r *CopyOutReader) drainAll(ctx context.Context) error {
	for {
		_, ok, err := r.Next()
		if !ok {
			return err
		}
	}
}

// WriteTo drains the stream into w, satisfying io.WriterTo so callers
// (e.g. internal/sqlfile and internal/copier) can plug it straight into
// whatever sink they're copying to.
func (r *CopyOutReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, ok, err := r.Next()
		if err != nil {
			return total, err
		}
		if !ok {
			return total, nil
		}
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

// CopyFrom issues `sql` (expected to be a COPY ... FROM STDIN statement)
// and returns a writer accepting raw COPY payload bytes, per spec.md
// §4.8's data-copy orchestrator pushing rows into the destination.
func (c *Client) CopyFrom(ctx context.Context, sql string) (*CopyInWriter, error) {
	if err := c.drainActive(ctx); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Query{SQL: sql}, protocol.EncodeQuery); err != nil {
		return nil, err
	}
	if err := c.conn.Flush(); err != nil {
		return nil, err
	}

	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(protocol.CopyResponse)
	if !ok || resp.Kind != protocol.CopyIn {
		if em, ok := msg.(protocol.ErrorResponse); ok {
			c.drainToReadyForQuery(ctx)
			return nil, newServerError(em.Fields)
		}
		c.drainToReadyForQuery(ctx)
		return nil, &UnexpectedMessageError{Phase: "CopyInResponse", Got: msg}
	}

	w := &CopyInWriter{client: c, ctx: ctx}
	c.active = w
	return w, nil
}

// CopyInWriter accepts raw COPY payload bytes and, on Close, signals
// completion and waits for the server's CommandComplete, per spec.md
// §4.8.
type CopyInWriter struct {
	client *Client
	ctx    context.Context
	closed bool
}

// Write sends one chunk of COPY payload as a single CopyData message.
func (w *CopyInWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("pgclient: write to closed CopyInWriter")
	}
	if err := pgconn.WriteFrontendMessage(w.client.conn, protocol.CopyData{Bytes: p}, protocol.EncodeCopyData); err != nil {
		return 0, err
	}
	if err := w.client.conn.Flush(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends CopyDone and waits for CommandComplete/ReadyForQuery. Must
// be called even on an error path — call Abort instead to send CopyFail.
func (w *CopyInWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := pgconn.WriteFrontendMessage(w.client.conn, protocol.CopyDone{}, protocol.EncodeCopyDone); err != nil {
		return err
	}
	if err := w.client.conn.Flush(); err != nil {
		return err
	}
	return w.awaitCompletion()
}

// Abort sends CopyFail, telling the server to roll back the copy instead
// of applying partial data, per spec.md §4.8's error-path requirement
// that a failed copy not leave partial rows committed.
func (w *CopyInWriter) Abort(reason string) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := pgconn.WriteFrontendMessage(w.client.conn, protocol.CopyFail{Message: reason}, protocol.EncodeCopyFail); err != nil {
		return err
	}
	if err := w.client.conn.Flush(); err != nil {
		return err
	}
	// The server replies with ErrorResponse for the failed COPY; that's
	// expected here, so drain it rather than surfacing it as a fresh error.
	w.awaitCompletion()
	return nil
}

func (w *CopyInWriter) awaitCompletion() error {
	defer w.client.clearActive()
	for {
		msg, err := w.client.conn.ReadBackendMessage(w.ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case protocol.CommandComplete:
			continue
		case protocol.ReadyForQuery:
			return nil
		case protocol.ErrorResponse:
			w.client.drainToReadyForQuery(w.ctx)
			return newServerError(m.Fields)
		default:
			w.client.drainToReadyForQuery(w.ctx)
			return &UnexpectedMessageError{Phase: "CopyIn completion", Got: msg}
		}
	}
}

func (w *CopyInWriter) drainAll(ctx context.Context) error {
	return w.Abort("abandoned without being closed")
}
