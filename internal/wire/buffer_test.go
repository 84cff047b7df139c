package wire

import (
	"bytes"
	"io"
	"testing"
)

// limitedReader caps every Read call to at most limit bytes, even if more
// is available, so ReadFrame is exercised across every possible chunking
// of a message's wire bytes (spec.md §8 testable property 2).
type limitedReader struct {
	r     io.Reader
	limit int
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if len(p) > l.limit {
		p = p[:l.limit]
	}
	return l.r.Read(p)
}

// encodeTestMessage writes a trivial length-prefixed message: 1 type byte
// ('T'), 4-byte length (inclusive), then a C-string payload.
func encodeTestMessage(dst []byte, s string) []byte {
	dst = append(dst, 'T')
	lenOffset := len(dst)
	dst = PutInt32(dst, 0)
	dst = PutCString(dst, s)
	PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func decodeTestMessage(buf []byte) (string, int, error) {
	c := NewCursor(buf)
	typ, err := c.ReadByte()
	if err != nil {
		return "", 0, err
	}
	if typ != 'T' {
		return "", 0, errUnknownType
	}
	length, err := c.ReadInt32()
	if err != nil {
		return "", 0, err
	}
	// length includes itself (4 bytes) but not the type byte.
	bodyLen := int(length) - 4
	if len(c.Remaining()) < bodyLen {
		return "", 0, &ErrNeedMoreData{Expected: bodyLen - len(c.Remaining())}
	}
	s, err := c.ReadCString()
	if err != nil {
		return "", 0, err
	}
	return s, c.Consumed(), nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errUnknownType = testErr("unknown type")

func TestReadFrameChunkSizeAgnostic(t *testing.T) {
	var buf []byte
	buf = encodeTestMessage(buf, "hello, world!")
	buf = encodeTestMessage(buf, "goodbye, world!")

	for limit := 1; limit <= 50; limit++ {
		lr := &limitedReader{r: bytes.NewReader(buf), limit: limit}
		r := NewReader(lr)

		got1, err := ReadFrame(r, decodeTestMessage)
		if err != nil {
			t.Fatalf("limit=%d: first frame: %v", limit, err)
		}
		if got1 != "hello, world!" {
			t.Fatalf("limit=%d: got %q", limit, got1)
		}

		got2, err := ReadFrame(r, decodeTestMessage)
		if err != nil {
			t.Fatalf("limit=%d: second frame: %v", limit, err)
		}
		if got2 != "goodbye, world!" {
			t.Fatalf("limit=%d: got %q", limit, got2)
		}
	}
}

func TestWriteFrameRoundTrip(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	if err := WriteFrame(w, "round trip", encodeTestMessage); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&out)
	got, err := ReadFrame(r, decodeTestMessage)
	if err != nil {
		t.Fatal(err)
	}
	if got != "round trip" {
		t.Fatalf("got %q", got)
	}
}

func TestReaderGrowsPastInitialCapacity(t *testing.T) {
	longString := bytes.Repeat([]byte("x"), initialBufferSize*2)
	var buf []byte
	buf = encodeTestMessage(buf, string(longString))

	r := NewReader(bytes.NewReader(buf))
	got, err := ReadFrame(r, decodeTestMessage)
	if err != nil {
		t.Fatal(err)
	}
	if got != string(longString) {
		t.Fatalf("got length %d, want %d", len(got), len(longString))
	}
}

func TestMessageTooLarge(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00}))
	r.SetMaxMessageSize(16)
	_, err := ReadFrame(r, func(buf []byte) (string, int, error) {
		return "", 0, &ErrNeedMoreData{Expected: 1024}
	})
	var tooLarge *ErrMessageTooLarge
	if err == nil {
		t.Fatal("expected error")
	}
	if e, ok := err.(*ErrMessageTooLarge); ok {
		tooLarge = e
	} else {
		t.Fatalf("got %T: %v", err, err)
	}
	if tooLarge.Max != 16 {
		t.Fatalf("got max %d", tooLarge.Max)
	}
}
