package protocol

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/elefantsql/elefant/internal/wire"
)

func decodeOne(t *testing.T, buf []byte) BackendMessage {
	t.Helper()
	r := wire.NewReader(bytes.NewReader(buf))
	msg, err := wire.ReadFrame(r, DecodeBackendMessage)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestBackendMessageRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  BackendMessage
		buf  []byte
	}{
		{
			name: "AuthenticationOk",
			msg:  AuthenticationOk{},
			buf:  encodeAuth(0, nil),
		},
		{
			name: "AuthenticationMD5Password",
			msg:  AuthenticationMD5Password{Salt: [4]byte{1, 2, 3, 4}},
			buf:  encodeAuth(5, []byte{1, 2, 3, 4}),
		},
		{
			name: "AuthenticationSASL",
			msg:  AuthenticationSASL{Mechanisms: []string{"SCRAM-SHA-256"}},
			buf:  encodeAuth(10, append(append([]byte("SCRAM-SHA-256"), 0), 0)),
		},
		{
			name: "ReadyForQuery",
			msg:  ReadyForQuery{Status: TxIdle},
			buf:  []byte{'Z', 0, 0, 0, 5, 'I'},
		},
		{
			name: "CommandComplete",
			msg:  CommandComplete{Tag: "SELECT 1"},
			buf:  commandCompleteBytes("SELECT 1"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeOne(t, tc.buf)
			if !reflect.DeepEqual(got, tc.msg) {
				t.Fatalf("got %#v, want %#v", got, tc.msg)
			}
		})
	}
}

func encodeAuth(sub int32, payload []byte) []byte {
	body := wire.PutInt32(nil, sub)
	body = append(body, payload...)
	var out []byte
	out = append(out, 'R')
	lenOffset := len(out)
	out = wire.PutInt32(out, 0)
	out = append(out, body...)
	wire.PutLengthPrefixedAt(out, lenOffset)
	return out
}

func commandCompleteBytes(tag string) []byte {
	var out []byte
	out = append(out, 'C')
	lenOffset := len(out)
	out = wire.PutInt32(out, 0)
	out = wire.PutCString(out, tag)
	wire.PutLengthPrefixedAt(out, lenOffset)
	return out
}

func TestDataRowWithNull(t *testing.T) {
	var out []byte
	out = append(out, 'D')
	lenOffset := len(out)
	out = wire.PutInt32(out, 0)
	out = wire.PutInt16(out, 3)
	out = wire.PutInt32(out, 1)
	out = append(out, '1')
	out = wire.PutInt32(out, -1)
	out = wire.PutInt32(out, 1)
	out = append(out, '3')
	wire.PutLengthPrefixedAt(out, lenOffset)

	got := decodeOne(t, out).(DataRow)
	want := [][]byte{[]byte("1"), nil, []byte("3")}
	if len(got.Values) != len(want) {
		t.Fatalf("got %d values", len(got.Values))
	}
	for i := range want {
		if !bytes.Equal(got.Values[i], want[i]) {
			t.Fatalf("value %d: got %q want %q", i, got.Values[i], want[i])
		}
	}
}

func TestErrorResponseFields(t *testing.T) {
	var out []byte
	out = append(out, 'E')
	lenOffset := len(out)
	out = wire.PutInt32(out, 0)
	out = append(out, 'S')
	out = wire.PutCString(out, "ERROR")
	out = append(out, 'C')
	out = wire.PutCString(out, "23505")
	out = append(out, 0)
	wire.PutLengthPrefixedAt(out, lenOffset)

	got := decodeOne(t, out).(ErrorResponse)
	want := []ErrorField{{Type: 'S', Value: "ERROR"}, {Type: 'C', Value: "23505"}}
	if !reflect.DeepEqual(got.Fields, want) {
		t.Fatalf("got %#v want %#v", got.Fields, want)
	}
}

func TestStartupFrontendEncodeDecode(t *testing.T) {
	msg := StartupMessage{Parameters: []StartupParameter{
		{Name: "user", Value: "postgres"},
		{Name: "database", Value: "postgres"},
		{Name: "client_encoding", Value: "UTF8"},
	}}
	buf := EncodeStartup(nil, msg)

	c := wire.NewCursor(buf)
	length, _ := c.ReadInt32()
	if int(length) != len(buf) {
		t.Fatalf("length field %d != buf len %d", length, len(buf))
	}
	version, _ := c.ReadInt32()
	if version != protocolVersion3_0 {
		t.Fatalf("got version %d", version)
	}
	for _, p := range msg.Parameters {
		name, _ := c.ReadCString()
		value, _ := c.ReadCString()
		if name != p.Name || value != p.Value {
			t.Fatalf("got %q=%q want %q=%q", name, value, p.Name, p.Value)
		}
	}
	term, _ := c.ReadByte()
	if term != 0 {
		t.Fatalf("missing trailing 0 byte")
	}
}

func TestUnexpectedLength(t *testing.T) {
	buf := []byte{'1', 0, 0, 0, 5, 0} // ParseComplete with a bogus extra byte
	_, err := wire.ReadFrame(wire.NewReader(bytes.NewReader(buf)), DecodeBackendMessage)
	if err == nil {
		t.Fatal("expected error")
	}
	pe, ok := err.(*ParseError)
	if !ok || pe.Kind != UnexpectedMessageLength {
		t.Fatalf("got %#v", err)
	}
}

func TestUnknownMessageType(t *testing.T) {
	buf := []byte{'?', 0, 0, 0, 4}
	_, err := wire.ReadFrame(wire.NewReader(bytes.NewReader(buf)), DecodeBackendMessage)
	pe, ok := err.(*ParseError)
	if !ok || pe.Kind != UnknownMessage {
		t.Fatalf("got %#v", err)
	}
}
