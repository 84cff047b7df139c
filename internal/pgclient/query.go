package pgclient

import (
	"context"
	"fmt"

	"github.com/elefantsql/elefant/internal/pgconn"
	"github.com/elefantsql/elefant/internal/pgtype"
	"github.com/elefantsql/elefant/internal/protocol"
)

// Param is one bound extended-query parameter. A nil Value encodes SQL
// NULL regardless of OID.
type Param struct {
	OID   int32
	Value any
}

// drainer is implemented by ResultSets and Rows: whichever stream a
// client left un-exhausted before issuing the next query must be
// consumed up to ReadyForQuery first, per spec.md §4.5's "must-drain
// before reuse" failure-model rule.
type drainer interface {
	drainAll(ctx context.Context) error
}

// drainActive consumes and discards whatever the previously returned
// stream has left, if the caller abandoned it without reading to
// completion.
func (c *Client) drainActive(ctx context.Context) error {
	if c.active == nil {
		return nil
	}
	a := c.active
	c.active = nil
	return a.drainAll(ctx)
}

func (c *Client) clearActive() { c.active = nil }

// drainToReadyForQuery discards messages until ReadyForQuery, returning
// the first ErrorResponse or I/O error seen along the way. Used both for
// explicit draining and for the mandatory post-Sync read in extended
// query.
func (c *Client) drainToReadyForQuery(ctx context.Context) error {
	var first error
	for {
		msg, err := c.conn.ReadBackendMessage(ctx)
		if err != nil {
			if first == nil {
				first = err
			}
			return first
		}
		switch m := msg.(type) {
		case protocol.ReadyForQuery:
			return first
		case protocol.ErrorResponse:
			if first == nil {
				first = newServerError(m.Fields)
			}
		}
	}
}

// Query runs a simple-query (spec.md §4.5's "query(sql, [])" path): send
// Query{sql}, then yield a lazy stream of result sets until
// ReadyForQuery.
func (c *Client) Query(ctx context.Context, sql string) (*ResultSets, error) {
	if err := c.drainActive(ctx); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Query{SQL: sql}, protocol.EncodeQuery); err != nil {
		return nil, err
	}
	if err := c.conn.Flush(); err != nil {
		return nil, err
	}
	rs := &ResultSets{client: c, ctx: ctx}
	c.active = rs
	return rs, nil
}

// ResultSets is a lazy stream of statement results within one simple
// query, per spec.md §4.5.
type ResultSets struct {
	client  *Client
	ctx     context.Context
	current *Rows
	done    bool
	err     error
}

// Next advances to the next result set. ok is false once ReadyForQuery
// has been observed (err holds the first ErrorResponse seen, if any).
func (rs *ResultSets) Next() (*Rows, bool, error) {
	if rs.done {
		return nil, false, rs.err
	}
	if rs.current != nil && !rs.current.finished {
		if err := rs.current.drainAll(rs.ctx); err != nil && rs.err == nil {
			rs.err = err
		}
	}
	for {
		msg, err := rs.client.conn.ReadBackendMessage(rs.ctx)
		if err != nil {
			rs.done = true
			rs.client.clearActive()
			if rs.err == nil {
				rs.err = err
			}
			return nil, false, rs.err
		}
		switch m := msg.(type) {
		case protocol.RowDescription:
			rows := &Rows{client: rs.client, ctx: rs.ctx, fields: m.Fields}
			rs.current = rows
			return rows, true, nil
		case protocol.CommandComplete:
			rows := &Rows{client: rs.client, ctx: rs.ctx, tag: m.Tag, finished: true}
			rs.current = rows
			return rows, true, nil
		case protocol.EmptyQueryResponse:
			rows := &Rows{client: rs.client, ctx: rs.ctx, finished: true}
			rs.current = rows
			return rows, true, nil
		case protocol.ErrorResponse:
			if rs.err == nil {
				rs.err = newServerError(m.Fields)
			}
			continue
		case protocol.ReadyForQuery:
			rs.done = true
			rs.client.clearActive()
			return nil, false, rs.err
		default:
			rs.done = true
			rs.client.clearActive()
			rs.err = &UnexpectedMessageError{Phase: "simple query", Got: msg}
			return nil, false, rs.err
		}
	}
}

func (rs *ResultSets) drainAll(ctx context.Context) error {
	for {
		_, ok, err := rs.Next()
		if !ok {
			return err
		}
	}
}

// Rows is a lazy stream of one result set's rows, per spec.md §4.5.
type Rows struct {
	client *Client
	ctx    context.Context

	fields   []protocol.FieldDescription
	tag      string
	err      error
	finished bool

	// awaitReadyForQuery is set on the Rows an extended query returns:
	// its CommandComplete is followed by exactly one ReadyForQuery
	// (triggered by the Sync this client always sends), which simple
	// query's ResultSets instead consumes itself across all result sets.
	awaitReadyForQuery bool
}

// Fields describes this result set's columns; empty for a
// CommandComplete-only result (e.g. an UPDATE/DELETE with no RETURNING).
func (r *Rows) Fields() []protocol.FieldDescription { return r.fields }

// CommandTag is the server's tag string ("SELECT 3", "UPDATE 1", ...),
// valid once Next has returned ok=false with a nil error.
func (r *Rows) CommandTag() string { return r.tag }

// Next returns the next row. ok is false once this result set is
// exhausted; check Err afterward.
func (r *Rows) Next() (protocol.DataRow, bool, error) {
	if r.finished {
		return protocol.DataRow{}, false, r.err
	}
	msg, err := r.client.conn.ReadBackendMessage(r.ctx)
	if err != nil {
		r.err = err
		return r.finish()
	}
	switch m := msg.(type) {
	case protocol.DataRow:
		return m, true, nil
	case protocol.CommandComplete:
		r.tag = m.Tag
		return r.finish()
	case protocol.EmptyQueryResponse:
		return r.finish()
	case protocol.ErrorResponse:
		r.err = newServerError(m.Fields)
		return r.finish()
	default:
		r.err = &UnexpectedMessageError{Phase: "reading rows", Got: msg}
		return r.finish()
	}
}

func (r *Rows) finish() (protocol.DataRow, bool, error) {
	r.finished = true
	if r.awaitReadyForQuery {
		if err := r.client.drainToReadyForQuery(r.ctx); err != nil && r.err == nil {
			r.err = err
		}
		r.client.clearActive()
	}
	return protocol.DataRow{}, false, r.err
}

func (r *Rows) drainAll(ctx context.Context) error {
	for {
		_, ok, err := r.Next()
		if !ok {
			return err
		}
	}
}

// Execute runs the extended-query path (spec.md §4.5): Parse (skipped on
// a prepared-statement cache hit) -> Bind -> Describe(Portal) ->
// Execute(0) -> Sync, batched and flushed in a single round trip.
// Parameters are sent in binary format, per §4.5's "unless the value
// encoder reports that its type has no binary encoding" — every codec
// registered in internal/pgtype has one, so this is unconditional here.
func (c *Client) Execute(ctx context.Context, sql string, params ...Param) (*Rows, error) {
	if err := c.drainActive(ctx); err != nil {
		return nil, err
	}

	cached, hit := c.stmts.Get(sql)
	name := ""
	paramOIDs := make([]int32, len(params))
	for i, p := range params {
		paramOIDs[i] = p.OID
	}

	closing := c.pendingCloses
	c.pendingCloses = nil
	for _, closeName := range closing {
		if err := pgconn.WriteFrontendMessage(c.conn, protocol.Close{Target: protocol.TargetStatement, Name: closeName}, protocol.EncodeClose); err != nil {
			return nil, err
		}
	}

	if hit {
		name = cached.name
	} else {
		name = c.nextStatementName()
		if err := pgconn.WriteFrontendMessage(c.conn, protocol.Parse{StatementName: name, Query: sql, ParameterOIDs: paramOIDs}, protocol.EncodeParse); err != nil {
			return nil, err
		}
	}

	values, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	formats := make([]protocol.ValueFormat, len(params))
	for i := range formats {
		formats[i] = protocol.FormatBinary
	}

	bind := protocol.Bind{
		SourceStatement:  name,
		ParameterFormats: formats,
		ParameterValues:  values,
		ResultFormats:    []protocol.ValueFormat{protocol.FormatBinary},
	}
	if err := pgconn.WriteFrontendMessage(c.conn, bind, protocol.EncodeBind); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Describe{Target: protocol.TargetPortal}, protocol.EncodeDescribe); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Execute{}, protocol.EncodeExecute); err != nil {
		return nil, err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.Sync{}, protocol.EncodeSync); err != nil {
		return nil, err
	}
	if err := c.conn.Flush(); err != nil {
		return nil, err
	}

	for range closing {
		msg, err := c.conn.ReadBackendMessage(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := msg.(protocol.CloseComplete); !ok {
			return nil, &UnexpectedMessageError{Phase: "extended query close", Got: msg}
		}
	}

	if !hit {
		msg, err := c.conn.ReadBackendMessage(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case protocol.ParseComplete:
		case protocol.ErrorResponse:
			c.drainToReadyForQuery(ctx)
			return nil, newServerError(m.Fields)
		default:
			c.drainToReadyForQuery(ctx)
			return nil, &UnexpectedMessageError{Phase: "extended query parse", Got: msg}
		}
	}

	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := msg.(protocol.BindComplete); !ok {
		if em, ok := msg.(protocol.ErrorResponse); ok {
			c.drainToReadyForQuery(ctx)
			return nil, newServerError(em.Fields)
		}
		c.drainToReadyForQuery(ctx)
		return nil, &UnexpectedMessageError{Phase: "extended query bind", Got: msg}
	}

	msg, err = c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return nil, err
	}
	var fields []protocol.FieldDescription
	switch m := msg.(type) {
	case protocol.RowDescription:
		fields = m.Fields
	case protocol.NoData:
	case protocol.ErrorResponse:
		c.drainToReadyForQuery(ctx)
		return nil, newServerError(m.Fields)
	default:
		c.drainToReadyForQuery(ctx)
		return nil, &UnexpectedMessageError{Phase: "extended query describe", Got: msg}
	}

	if !hit {
		c.stmts.Put(sql, &preparedStatement{name: name, paramOIDs: paramOIDs, fields: fields})
	}

	rows := &Rows{client: c, ctx: ctx, fields: fields, awaitReadyForQuery: true}
	c.active = rows
	return rows, nil
}

func (c *Client) nextStatementName() string {
	c.stmtCounter++
	return fmt.Sprintf("es%d", c.stmtCounter)
}

func encodeParams(params []Param) ([][]byte, error) {
	if len(params) == 0 {
		return nil, nil
	}
	values := make([][]byte, len(params))
	for i, p := range params {
		if p.Value == nil {
			continue
		}
		codec, ok := pgtype.Lookup(p.OID)
		if !ok {
			return nil, fmt.Errorf("pgclient: no codec registered for parameter %d (OID %d)", i, p.OID)
		}
		b, err := codec.EncodeBinary(p.Value)
		if err != nil {
			return nil, fmt.Errorf("pgclient: encoding parameter %d: %w", i, err)
		}
		values[i] = b
	}
	return values, nil
}
