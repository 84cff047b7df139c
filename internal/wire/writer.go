package wire

import (
	"encoding/binary"
	"io"
)

// Writer wraps an io.Writer with a reusable scratch buffer, so a caller
// encoding many small messages in sequence (the common case for extended
// query: Parse+Bind+Describe+Execute+Sync batched before one flush) does
// not allocate per message.
type Writer struct {
	dst   io.Writer
	flush *flusher
	batch []byte
}

// flusher allows an *bufio.Writer or a plain io.Writer (which has no
// Flush) to be used interchangeably.
type flusher struct {
	f func() error
}

// NewWriter wraps dst. If dst implements `Flush() error` (e.g.
// *bufio.Writer), Flush delegates to it; otherwise Flush is a no-op since
// a plain io.Writer has nothing buffered on its side.
func NewWriter(dst io.Writer) *Writer {
	w := &Writer{dst: dst}
	if f, ok := dst.(interface{ Flush() error }); ok {
		w.flush = &flusher{f: f.Flush}
	}
	return w
}

// Encoder serializes one message into dst, appending encoded bytes.
type Encoder[T any] func(dst []byte, msg T) []byte

// WriteFrame clears the scratch buffer, encodes msg into it, and writes
// the whole frame in one Write call, per spec.md §4.1's write path.
func WriteFrame[T any](w *Writer, msg T, encode Encoder[T]) error {
	w.batch = w.batch[:0]
	w.batch = encode(w.batch, msg)
	_, err := w.dst.Write(w.batch)
	return err
}

// WriteBytes writes pre-encoded bytes through the same underlying
// destination as WriteFrame, preserving write ordering relative to framed
// messages (used by pgconn.Conn.WriteRaw for frames that are already
// encoded).
func (w *Writer) WriteBytes(buf []byte) error {
	_, err := w.dst.Write(buf)
	return err
}

// Flush flushes the underlying stream, matching spec.md §4.4's ordering
// guarantee: a message is not on the wire until Flush completes.
func (w *Writer) Flush() error {
	if w.flush == nil {
		return nil
	}
	return w.flush.f()
}

// PutInt16 / PutInt32 append a big-endian integer, mirroring spec.md §4.2's
// "every _i16/_i32 is big-endian".
func PutInt16(dst []byte, v int16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return append(dst, b[:]...)
}

func PutInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func PutInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

// PutCString appends a null-terminated string, as used throughout the
// startup message and every C-string field in spec.md §4.2.
func PutCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0)
}

// PutLengthPrefixedAt writes the 4-byte big-endian length of
// dst[lenOffset:] (length field included, per spec.md §3.1's Frame
// definition) back into dst[lenOffset:lenOffset+4]. Called after the body
// has been appended so the length can be computed in one pass rather than
// fixed up eagerly, matching spec.md §4.2: "all length calculations are
// explicit and included in the encoding step".
func PutLengthPrefixedAt(dst []byte, lenOffset int) {
	binary.BigEndian.PutUint32(dst[lenOffset:lenOffset+4], uint32(len(dst)-lenOffset))
}
