package pgclient

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/elefantsql/elefant/internal/pgtype"
)

// fakeServer is the server half of a net.Pipe, driven inline by each test
// so it can assert exactly which frontend messages arrived and script
// exactly which backend messages come back.
type fakeServer struct {
	r *bufio.Reader
	w io.Writer
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{r: bufio.NewReader(conn), w: conn}
}

func int32Bytes(v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return b[:]
}

func int16Bytes(v int16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return b[:]
}

func frame(typ byte, body []byte) []byte {
	out := make([]byte, 0, 5+len(body))
	out = append(out, typ)
	out = append(out, int32Bytes(int32(4+len(body)))...)
	out = append(out, body...)
	return out
}

func (s *fakeServer) send(buf []byte) {
	s.w.Write(buf)
}

func (s *fakeServer) readStartup() {
	var lenBuf [4]byte
	io.ReadFull(s.r, lenBuf[:])
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length-4)
	io.ReadFull(s.r, body)
}

// readFramed reads one type-prefixed frontend message, returning its type
// byte and raw body (not decoded further — tests only need to count and
// sequence messages, not interpret every field).
func (s *fakeServer) readFramed() (byte, []byte) {
	typ, err := s.r.ReadByte()
	if err != nil {
		return 0, nil
	}
	var lenBuf [4]byte
	io.ReadFull(s.r, lenBuf[:])
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length-4)
	io.ReadFull(s.r, body)
	return typ, body
}

func authOK() []byte           { return frame('R', int32Bytes(0)) }
func readyForQuery() []byte    { return frame('Z', []byte{'I'}) }
func backendKeyData() []byte   { return frame('K', append(int32Bytes(42), int32Bytes(99)...)) }
func parameterStatus(k, v string) []byte {
	body := append([]byte(k), 0)
	body = append(body, append([]byte(v), 0)...)
	return frame('S', body)
}
func commandComplete(tag string) []byte { return frame('C', append([]byte(tag), 0)) }
func parseComplete() []byte             { return frame('1', nil) }
func bindComplete() []byte              { return frame('2', nil) }

func rowDescription(names []string, oids []int32) []byte {
	body := int16Bytes(int16(len(names)))
	for i, name := range names {
		body = append(body, append([]byte(name), 0)...)
		body = append(body, int32Bytes(0)...)  // table OID
		body = append(body, int16Bytes(0)...)  // column attr no
		body = append(body, int32Bytes(oids[i])...)
		body = append(body, int16Bytes(-1)...) // type size
		body = append(body, int32Bytes(-1)...) // type modifier
		body = append(body, int16Bytes(1)...)  // binary format
	}
	return frame('T', body)
}

func dataRow(values [][]byte) []byte {
	body := int16Bytes(int16(len(values)))
	for _, v := range values {
		if v == nil {
			body = append(body, int32Bytes(-1)...)
			continue
		}
		body = append(body, int32Bytes(int32(len(v)))...)
		body = append(body, v...)
	}
	return frame('D', body)
}

func connectedPair(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := newFakeServer(serverConn)

	type result struct {
		c   *Client
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := Connect(context.Background(), clientConn, "alice", "testdb", "unused")
		done <- result{c, err}
	}()

	srv.readStartup()
	srv.send(authOK())
	srv.send(parameterStatus("server_version", "16.0"))
	srv.send(backendKeyData())
	srv.send(readyForQuery())

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Connect failed: %v", res.err)
		}
		return res.c, srv
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect")
		return nil, nil
	}
}

func TestConnectTrustAuth(t *testing.T) {
	c, _ := connectedPair(t)
	defer c.Close()

	if v, ok := c.ParameterStatus("server_version"); !ok || v != "16.0" {
		t.Errorf("expected server_version=16.0, got %q ok=%v", v, ok)
	}
	key, ok := c.BackendKey()
	if !ok || key.ProcessID != 42 || key.SecretKey != 99 {
		t.Errorf("unexpected backend key: %+v ok=%v", key, ok)
	}
}

func TestSimpleQuerySingleResultSet(t *testing.T) {
	c, srv := connectedPair(t)
	defer c.Close()

	go func() {
		typ, _ := srv.readFramed()
		if typ != 'Q' {
			t.Errorf("expected Query message, got %q", typ)
		}
		srv.send(rowDescription([]string{"id"}, []int32{int32(pgtype.OIDInt4)}))
		srv.send(dataRow([][]byte{{0, 0, 0, 7}}))
		srv.send(dataRow([][]byte{{0, 0, 0, 8}}))
		srv.send(commandComplete("SELECT 2"))
		srv.send(readyForQuery())
	}()

	rs, err := c.Query(context.Background(), "select id from widgets")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	rows, ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("expected one result set, got ok=%v err=%v", ok, err)
	}
	if len(rows.Fields()) != 1 || rows.Fields()[0].Name != "id" {
		t.Fatalf("unexpected fields: %+v", rows.Fields())
	}

	var got []int32
	for {
		row, ok, err := rows.Next()
		if err != nil {
			t.Fatalf("row read error: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, int32(binary.BigEndian.Uint32(row.Values[0])))
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Errorf("unexpected rows: %v", got)
	}
	if rows.CommandTag() != "SELECT 2" {
		t.Errorf("unexpected command tag: %q", rows.CommandTag())
	}

	_, ok, err = rs.Next()
	if ok || err != nil {
		t.Fatalf("expected end of result sets, got ok=%v err=%v", ok, err)
	}
}

func TestExtendedQueryCachesPreparedStatement(t *testing.T) {
	c, srv := connectedPair(t)
	defer c.Close()

	const sql = "select id from widgets where id = $1"

	go func() {
		// First execution: Parse + Bind + Describe + Execute + Sync.
		typ, _ := srv.readFramed()
		if typ != 'P' {
			t.Errorf("expected Parse, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'B' {
			t.Errorf("expected Bind, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'D' {
			t.Errorf("expected Describe, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'E' {
			t.Errorf("expected Execute, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'S' {
			t.Errorf("expected Sync, got %q", typ)
		}

		srv.send(parseComplete())
		srv.send(bindComplete())
		srv.send(rowDescription([]string{"id"}, []int32{int32(pgtype.OIDInt4)}))
		srv.send(dataRow([][]byte{{0, 0, 0, 5}}))
		srv.send(commandComplete("SELECT 1"))
		srv.send(readyForQuery())
	}()

	rows, err := c.Execute(context.Background(), sql, Param{OID: pgtype.OIDInt4, Value: int32(5)})
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := rows.drainAll(context.Background()); err != nil {
		t.Fatalf("draining first Execute: %v", err)
	}

	go func() {
		// Second execution with the same SQL: no Parse this time.
		typ, _ := srv.readFramed()
		if typ != 'B' {
			t.Errorf("expected Bind (cache hit), got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'D' {
			t.Errorf("expected Describe, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'E' {
			t.Errorf("expected Execute, got %q", typ)
		}
		typ, _ = srv.readFramed()
		if typ != 'S' {
			t.Errorf("expected Sync, got %q", typ)
		}

		srv.send(bindComplete())
		srv.send(rowDescription([]string{"id"}, []int32{int32(pgtype.OIDInt4)}))
		srv.send(dataRow([][]byte{{0, 0, 0, 6}}))
		srv.send(commandComplete("SELECT 1"))
		srv.send(readyForQuery())
	}()

	rows2, err := c.Execute(context.Background(), sql, Param{OID: pgtype.OIDInt4, Value: int32(6)})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	row, ok, err := rows2.Next()
	if err != nil || !ok {
		t.Fatalf("expected one row, got ok=%v err=%v", ok, err)
	}
	if got := int32(binary.BigEndian.Uint32(row.Values[0])); got != 6 {
		t.Errorf("expected id=6, got %d", got)
	}
	if err := rows2.drainAll(context.Background()); err != nil {
		t.Fatalf("draining second Execute: %v", err)
	}
}

func TestStatementCacheLRUEviction(t *testing.T) {
	var evicted []string
	c := newStatementCache(2)
	c.onEvict = func(name string) { evicted = append(evicted, name) }

	c.Put("a", &preparedStatement{name: "es1"})
	c.Put("b", &preparedStatement{name: "es2"})
	c.Put("c", &preparedStatement{name: "es3"})

	if len(evicted) != 1 || evicted[0] != "es1" {
		t.Fatalf("expected es1 evicted, got %v", evicted)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to still be cached")
	}
}
