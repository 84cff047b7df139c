package protocol

import (
	"github.com/elefantsql/elefant/internal/wire"
)

const protocolVersion3_0 int32 = 3<<16 | 0

const (
	sslRequestCode  int32 = 80877103
	gssEncRequestCode int32 = 80877104
	cancelRequestCode int32 = 80877102
)

// Frontend message type bytes, spec.md §4.2/§6.1.
const (
	typeBind        byte = 'B'
	typeClose       byte = 'C'
	typeCopyFail    byte = 'f'
	typeDescribe    byte = 'D'
	typeExecute     byte = 'E'
	typeFlush       byte = 'H'
	typeFunctionCall byte = 'F'
	typeParse       byte = 'P'
	typePasswordMsg byte = 'p'
	typeQuery       byte = 'Q'
	typeSync        byte = 'S'
	typeTerminate   byte = 'X'
)

// DescribeTarget / CloseTarget select between a prepared statement and a
// portal, spec.md §4.2.
type DescribeTarget byte
type CloseTarget byte

const (
	TargetStatement DescribeTarget = 'S'
	TargetPortal    DescribeTarget = 'P'
)

// StartupMessage is the unframed (no type byte) frontend message that
// begins every connection, spec.md §4.2/§6.1.
type StartupMessage struct {
	Parameters []StartupParameter
}

type StartupParameter struct{ Name, Value string }

// CancelRequest, SSLRequest, GSSENCRequest are the other unframed
// frontend messages, spec.md §6.1.
type CancelRequest struct {
	ProcessID int32
	SecretKey int32
}

type SSLRequest struct{}
type GSSENCRequest struct{}

// Bind, Close, Describe, Execute, Flush, FunctionCall, Parse, Query, Sync,
// Terminate are the framed frontend messages of the extended/simple query
// protocol, spec.md §4.5.
type Bind struct {
	DestinationPortal string
	SourceStatement   string
	ParameterFormats  []ValueFormat
	ParameterValues   [][]byte // nil element = SQL NULL
	ResultFormats     []ValueFormat
}

type Close struct {
	Target DescribeTarget
	Name   string
}

type Describe struct {
	Target DescribeTarget
	Name   string
}

type Execute struct {
	PortalName string
	MaxRows    int32 // 0 = no limit, per spec.md §4.5's "Execute(0)"
}

type Flush struct{}

type Parse struct {
	StatementName string
	Query         string
	ParameterOIDs []int32
}

type Query struct{ SQL string }

type Sync struct{}

type Terminate struct{}

// CopyData, CopyDone, CopyFail are the frontend side of the COPY
// sub-protocol, spec.md §4.8's streaming data transfer. CopyData and
// CopyDone (and their type bytes) are declared once in backend.go, since
// both directions use the same message.
type CopyFail struct{ Message string }

// PasswordMessage is sent for cleartext/MD5 auth; SASLInitialResponse and
// SASLResponse carry SCRAM payloads. All three share the wire type byte
// 'p' per spec.md §4.2 — the frontend encoder distinguishes them by which
// Go type is passed in, while the *decoder* (DecodeUndecidedP, which the
// client itself never calls) must deliver an UndecidedPMessage.
type PasswordMessage struct{ Password string }

type SASLInitialResponse struct {
	Mechanism    string
	InitialData  []byte
	HasInitialData bool
}

type SASLResponse struct{ Data []byte }

// UndecidedPMessage is what a reader sees for any 'p' frontend message
// without protocol-state context to disambiguate it, per spec.md §3.1.
type UndecidedPMessage struct{ Raw []byte }

// EncodeStartup writes the Startup message: length + protocol version +
// repeated name\0value\0 + trailing 0, spec.md §4.2.
func EncodeStartup(dst []byte, msg StartupMessage) []byte {
	lenOffset := len(dst)
	dst = wire.PutInt32(dst, 0)
	dst = wire.PutInt32(dst, protocolVersion3_0)
	for _, p := range msg.Parameters {
		dst = wire.PutCString(dst, p.Name)
		dst = wire.PutCString(dst, p.Value)
	}
	dst = append(dst, 0)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

// EncodeCancelRequest writes the fixed 16-byte CancelRequest, spec.md §6.1.
func EncodeCancelRequest(dst []byte, msg CancelRequest) []byte {
	lenOffset := len(dst)
	dst = wire.PutInt32(dst, 0)
	dst = wire.PutInt32(dst, cancelRequestCode)
	dst = wire.PutInt32(dst, msg.ProcessID)
	dst = wire.PutInt32(dst, msg.SecretKey)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

// EncodeSSLRequest / EncodeGSSENCRequest write the fixed 8-byte negotiation
// requests, spec.md §6.1. TLS negotiation itself is a host responsibility
// per spec.md §1; this client only produces the bytes.
func EncodeSSLRequest(dst []byte) []byte {
	lenOffset := len(dst)
	dst = wire.PutInt32(dst, 0)
	dst = wire.PutInt32(dst, sslRequestCode)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeGSSENCRequest(dst []byte) []byte {
	lenOffset := len(dst)
	dst = wire.PutInt32(dst, 0)
	dst = wire.PutInt32(dst, gssEncRequestCode)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func frameHeader(dst []byte, typ byte) (out []byte, lenOffset int) {
	dst = append(dst, typ)
	lenOffset = len(dst)
	dst = wire.PutInt32(dst, 0)
	return dst, lenOffset
}

func EncodeQuery(dst []byte, msg Query) []byte {
	dst, lenOffset := frameHeader(dst, typeQuery)
	dst = wire.PutCString(dst, msg.SQL)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeParse(dst []byte, msg Parse) []byte {
	dst, lenOffset := frameHeader(dst, typeParse)
	dst = wire.PutCString(dst, msg.StatementName)
	dst = wire.PutCString(dst, msg.Query)
	dst = wire.PutInt16(dst, int16(len(msg.ParameterOIDs)))
	for _, oid := range msg.ParameterOIDs {
		dst = wire.PutInt32(dst, oid)
	}
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeBind(dst []byte, msg Bind) []byte {
	dst, lenOffset := frameHeader(dst, typeBind)
	dst = wire.PutCString(dst, msg.DestinationPortal)
	dst = wire.PutCString(dst, msg.SourceStatement)

	dst = wire.PutInt16(dst, int16(len(msg.ParameterFormats)))
	for _, f := range msg.ParameterFormats {
		dst = wire.PutInt16(dst, int16(f))
	}

	dst = wire.PutInt16(dst, int16(len(msg.ParameterValues)))
	for _, v := range msg.ParameterValues {
		if v == nil {
			dst = wire.PutInt32(dst, -1)
			continue
		}
		dst = wire.PutInt32(dst, int32(len(v)))
		dst = append(dst, v...)
	}

	dst = wire.PutInt16(dst, int16(len(msg.ResultFormats)))
	for _, f := range msg.ResultFormats {
		dst = wire.PutInt16(dst, int16(f))
	}

	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeDescribe(dst []byte, msg Describe) []byte {
	dst, lenOffset := frameHeader(dst, typeDescribe)
	dst = append(dst, byte(msg.Target))
	dst = wire.PutCString(dst, msg.Name)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeExecute(dst []byte, msg Execute) []byte {
	dst, lenOffset := frameHeader(dst, typeExecute)
	dst = wire.PutCString(dst, msg.PortalName)
	dst = wire.PutInt32(dst, msg.MaxRows)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeClose(dst []byte, msg Close) []byte {
	dst, lenOffset := frameHeader(dst, typeClose)
	dst = append(dst, byte(msg.Target))
	dst = wire.PutCString(dst, msg.Name)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeSync(dst []byte, _ Sync) []byte {
	dst, lenOffset := frameHeader(dst, typeSync)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeFlush(dst []byte, _ Flush) []byte {
	dst, lenOffset := frameHeader(dst, typeFlush)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeTerminate(dst []byte, _ Terminate) []byte {
	dst, lenOffset := frameHeader(dst, typeTerminate)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

// EncodeCopyData writes one chunk of COPY payload bytes, unframed beyond
// the standard type+length header (no internal structure), spec.md §4.8.
func EncodeCopyData(dst []byte, msg CopyData) []byte {
	dst, lenOffset := frameHeader(dst, typeCopyData)
	dst = append(dst, msg.Bytes...)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeCopyDone(dst []byte, _ CopyDone) []byte {
	dst, lenOffset := frameHeader(dst, typeCopyDone)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeCopyFail(dst []byte, msg CopyFail) []byte {
	dst, lenOffset := frameHeader(dst, typeCopyFail)
	dst = wire.PutCString(dst, msg.Message)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodePasswordMessage(dst []byte, msg PasswordMessage) []byte {
	dst, lenOffset := frameHeader(dst, typePasswordMsg)
	dst = wire.PutCString(dst, msg.Password)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

// EncodeSASLInitialResponse writes mechanism\0 + int32(len) + data, the
// "'p' overloaded" initial SASL message, spec.md §4.2/§4.3.
func EncodeSASLInitialResponse(dst []byte, msg SASLInitialResponse) []byte {
	dst, lenOffset := frameHeader(dst, typePasswordMsg)
	dst = wire.PutCString(dst, msg.Mechanism)
	if !msg.HasInitialData {
		dst = wire.PutInt32(dst, -1)
	} else {
		dst = wire.PutInt32(dst, int32(len(msg.InitialData)))
		dst = append(dst, msg.InitialData...)
	}
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

func EncodeSASLResponse(dst []byte, msg SASLResponse) []byte {
	dst, lenOffset := frameHeader(dst, typePasswordMsg)
	dst = append(dst, msg.Data...)
	wire.PutLengthPrefixedAt(dst, lenOffset)
	return dst
}

// DecodeUndecidedP is a wire.Decoder for the overloaded 'p' frontend
// message: the reader cannot know whether it is PasswordMessage,
// SASLInitialResponse, or SASLResponse without the surrounding protocol
// state, so it hands back the raw payload (spec.md §3.1/§4.2). Nothing in
// this module calls it; the client itself only ever writes 'p' messages,
// never reads them.
func DecodeUndecidedP(buf []byte) (UndecidedPMessage, int, error) {
	c := wire.NewCursor(buf)
	typ, err := c.ReadByte()
	if err != nil {
		return UndecidedPMessage{}, 0, err
	}
	if typ != typePasswordMsg {
		return UndecidedPMessage{}, 0, errUnknownMessage(typ)
	}
	length, err := c.ReadInt32()
	if err != nil {
		return UndecidedPMessage{}, 0, err
	}
	bodyLen := int(length) - 4
	if bodyLen < 0 {
		return UndecidedPMessage{}, 0, errUnexpectedLength(typ, int(length))
	}
	if len(c.Remaining()) < bodyLen {
		return UndecidedPMessage{}, 0, &wire.ErrNeedMoreData{Expected: bodyLen - len(c.Remaining())}
	}
	payload, _ := c.ReadBytes(bodyLen)
	return UndecidedPMessage{Raw: payload}, c.Consumed(), nil
}
