package protocol

import (
	"github.com/elefantsql/elefant/internal/wire"
)

// CopyResponseKind distinguishes CopyInResponse/CopyOutResponse/
// CopyBothResponse, which otherwise decode to the same struct shape.
type CopyResponseKind int

const (
	CopyIn CopyResponseKind = iota
	CopyOut
	CopyBoth
)

// Backend message type bytes, spec.md §4.2/§6.1.
const (
	typeAuthentication   byte = 'R'
	typeBackendKeyData   byte = 'K'
	typeBindComplete     byte = '2'
	typeCloseComplete    byte = '3'
	typeCommandComplete  byte = 'C'
	typeCopyData         byte = 'd'
	typeCopyDone         byte = 'c'
	typeCopyInResponse   byte = 'G'
	typeCopyOutResponse  byte = 'H'
	typeCopyBothResponse byte = 'W'
	typeDataRow          byte = 'D'
	typeEmptyQuery       byte = 'I'
	typeErrorResponse    byte = 'E'
	typeFunctionCallResp byte = 'V'
	typeNegotiateProtoV  byte = 'v'
	typeNoData           byte = 'n'
	typeNotification     byte = 'A'
	typeParamDescription byte = 't'
	typeParameterStatus  byte = 'S'
	typeParseComplete    byte = '1'
	typePortalSuspended  byte = 's'
	typeReadyForQuery    byte = 'Z'
	typeRowDescription   byte = 'T'
	typeNoticeResponse   byte = 'N'
)

// ValueFormat is the text/binary discriminant carried by RowDescription
// fields, CopyIn/Out/Both responses, and Bind parameter/result formats.
type ValueFormat int16

const (
	FormatText   ValueFormat = 0
	FormatBinary ValueFormat = 1
)

func decodeValueFormat(v int16) (ValueFormat, error) {
	switch v {
	case 0:
		return FormatText, nil
	case 1:
		return FormatBinary, nil
	default:
		return 0, errUnknownValueFormat(v)
	}
}

// TransactionStatus is ReadyForQuery's payload, spec.md §3.1.
type TransactionStatus byte

const (
	TxIdle             TransactionStatus = 'I'
	TxInTransaction    TransactionStatus = 'T'
	TxInFailedTransaction TransactionStatus = 'E'
)

// FieldDescription describes one RowDescription column, spec.md §3.1.
type FieldDescription struct {
	Name           string
	TableOID       int32
	ColumnAttrNo   int16
	TypeOID        int32
	TypeSize       int16
	TypeModifier   int32
	Format         ValueFormat
}

// ErrorField is one (type, value) pair of an ErrorResponse/NoticeResponse.
type ErrorField struct {
	Type  byte
	Value string
}

// BackendMessage is implemented by every concrete backend variant of
// spec.md §3.1. A type switch on the concrete type is the idiomatic Go
// replacement for the Rust tagged union.
type BackendMessage interface {
	isBackendMessage()
}

type (
	AuthenticationOk                struct{}
	AuthenticationKerberosV5        struct{}
	AuthenticationCleartextPassword struct{}
	AuthenticationMD5Password       struct{ Salt [4]byte }
	AuthenticationGSS               struct{}
	AuthenticationGSSContinue       struct{ Data []byte }
	AuthenticationSSPI              struct{}
	AuthenticationSASL              struct{ Mechanisms []string }
	AuthenticationSASLContinue      struct{ Data []byte }
	AuthenticationSASLFinal         struct{ Outcome []byte }

	BackendKeyData struct {
		ProcessID int32
		SecretKey int32
	}

	BindComplete    struct{}
	CloseComplete   struct{}
	CommandComplete struct{ Tag string }
	CopyData        struct{ Bytes []byte }
	CopyDone        struct{}

	CopyResponse struct {
		Kind          CopyResponseKind
		Format        ValueFormat
		ColumnFormats []ValueFormat
	}

	DataRow struct {
		// Values[i] == nil means SQL NULL (wire length -1), matching
		// spec.md §3.1's "values:[optional bytes]".
		Values [][]byte
	}

	EmptyQueryResponse struct{}

	ErrorResponse struct{ Fields []ErrorField }
	NoticeResponse struct{ Fields []ErrorField }

	FunctionCallResponse struct{ Value []byte }

	NegotiateProtocolVersion struct {
		NewestProtocolVersion int32
		ProtocolOptions       []string
	}

	NoData struct{}

	NotificationResponse struct {
		ProcessID int32
		Channel   string
		Payload   string
	}

	ParameterDescription struct{ Types []int32 }
	ParameterStatus      struct{ Name, Value string }
	ParseComplete        struct{}
	PortalSuspended      struct{}
	ReadyForQuery        struct{ Status TransactionStatus }
	RowDescription       struct{ Fields []FieldDescription }
)

func (AuthenticationOk) isBackendMessage()                {}
func (AuthenticationKerberosV5) isBackendMessage()         {}
func (AuthenticationCleartextPassword) isBackendMessage() {}
func (AuthenticationMD5Password) isBackendMessage()       {}
func (AuthenticationGSS) isBackendMessage()               {}
func (AuthenticationGSSContinue) isBackendMessage()       {}
func (AuthenticationSSPI) isBackendMessage()              {}
func (AuthenticationSASL) isBackendMessage()              {}
func (AuthenticationSASLContinue) isBackendMessage()      {}
func (AuthenticationSASLFinal) isBackendMessage()         {}
func (BackendKeyData) isBackendMessage()                  {}
func (BindComplete) isBackendMessage()                     {}
func (CloseComplete) isBackendMessage()                    {}
func (CommandComplete) isBackendMessage()                   {}
func (CopyData) isBackendMessage()                          {}
func (CopyDone) isBackendMessage()                          {}
func (CopyResponse) isBackendMessage()                      {}
func (DataRow) isBackendMessage()                           {}
func (EmptyQueryResponse) isBackendMessage()                {}
func (ErrorResponse) isBackendMessage()                      {}
func (NoticeResponse) isBackendMessage()                     {}
func (FunctionCallResponse) isBackendMessage()               {}
func (NegotiateProtocolVersion) isBackendMessage()           {}
func (NoData) isBackendMessage()                            {}
func (NotificationResponse) isBackendMessage()               {}
func (ParameterDescription) isBackendMessage()                {}
func (ParameterStatus) isBackendMessage()                     {}
func (ParseComplete) isBackendMessage()                       {}
func (PortalSuspended) isBackendMessage()                      {}
func (ReadyForQuery) isBackendMessage()                        {}
func (RowDescription) isBackendMessage()                        {}

// DecodeBackendMessage is a wire.Decoder[BackendMessage]: it dispatches on
// the leading type byte exactly as spec.md §4.2 and §6.1 specify, and as
// the teacher's internal/proxy/postgres.go readPGMessage/relayAuth switch
// over message/auth type constants does for its own (untyped) relay.
func DecodeBackendMessage(buf []byte) (BackendMessage, int, error) {
	c := wire.NewCursor(buf)
	typ, err := c.ReadByte()
	if err != nil {
		return nil, 0, err
	}

	length, err := c.ReadInt32()
	if err != nil {
		return nil, 0, err
	}
	bodyLen := int(length) - 4
	if bodyLen < 0 {
		return nil, 0, errUnexpectedLength(typ, int(length))
	}
	if len(c.Remaining()) < bodyLen {
		return nil, 0, &wire.ErrNeedMoreData{Expected: bodyLen - len(c.Remaining())}
	}
	body := wire.NewCursor(c.Remaining()[:bodyLen])

	msg, err := decodeBackendBody(typ, int(length), body)
	if err != nil {
		// The outer frame is already fully buffered (bodyLen bytes were
		// confirmed available above), so a short read inside the body
		// means malformed internal counts, not a need for more bytes off
		// the wire — surface it as a length mismatch rather than asking
		// the frame reader to block for data that will never arrive.
		if _, ok := err.(*wire.ErrNeedMoreData); ok {
			return nil, 0, errUnexpectedLength(typ, int(length))
		}
		return nil, 0, err
	}
	return msg, c.Consumed() + bodyLen, nil
}

func decodeBackendBody(typ byte, length int, b *wire.Cursor) (BackendMessage, error) {
	switch typ {
	case typeAuthentication:
		return decodeAuthentication(typ, length, b)
	case typeBackendKeyData:
		if length != 12 {
			return nil, errUnexpectedLength(typ, length)
		}
		pid, _ := b.ReadInt32()
		secret, _ := b.ReadInt32()
		return BackendKeyData{ProcessID: pid, SecretKey: secret}, nil
	case typeBindComplete:
		return requireFixed(typ, length, 4, BindComplete{})
	case typeCloseComplete:
		return requireFixed(typ, length, 4, CloseComplete{})
	case typeCommandComplete:
		tag, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		return CommandComplete{Tag: tag}, nil
	case typeCopyData:
		return CopyData{Bytes: b.Remaining()}, nil
	case typeCopyDone:
		return requireFixed(typ, length, 4, CopyDone{})
	case typeCopyInResponse, typeCopyOutResponse, typeCopyBothResponse:
		return decodeCopyResponse(typ, length, b)
	case typeDataRow:
		return decodeDataRow(b)
	case typeEmptyQuery:
		return requireFixed(typ, length, 4, EmptyQueryResponse{})
	case typeErrorResponse:
		fields, err := decodeErrorFields(b)
		if err != nil {
			return nil, err
		}
		return ErrorResponse{Fields: fields}, nil
	case typeNoticeResponse:
		fields, err := decodeErrorFields(b)
		if err != nil {
			return nil, err
		}
		return NoticeResponse{Fields: fields}, nil
	case typeFunctionCallResp:
		return decodeFunctionCallResponse(typ, length, b)
	case typeNegotiateProtoV:
		return decodeNegotiateProtocolVersion(typ, length, b)
	case typeNoData:
		return requireFixed(typ, length, 4, NoData{})
	case typeNotification:
		return decodeNotificationResponse(b)
	case typeParamDescription:
		return decodeParameterDescription(b)
	case typeParameterStatus:
		name, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		value, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		return ParameterStatus{Name: name, Value: value}, nil
	case typeParseComplete:
		return requireFixed(typ, length, 4, ParseComplete{})
	case typePortalSuspended:
		return requireFixed(typ, length, 4, PortalSuspended{})
	case typeReadyForQuery:
		if length != 5 {
			return nil, errUnexpectedLength(typ, length)
		}
		status, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		switch TransactionStatus(status) {
		case TxIdle, TxInTransaction, TxInFailedTransaction:
			return ReadyForQuery{Status: TransactionStatus(status)}, nil
		default:
			return nil, &ParseError{Kind: UnknownTransactionStatus, Target: status}
		}
	case typeRowDescription:
		return decodeRowDescription(b)
	default:
		return nil, errUnknownMessage(typ)
	}
}

func requireFixed(typ byte, length, want int, msg BackendMessage) (BackendMessage, error) {
	if length != want {
		return nil, errUnexpectedLength(typ, length)
	}
	return msg, nil
}

func decodeAuthentication(typ byte, length int, b *wire.Cursor) (BackendMessage, error) {
	if length < 8 {
		return nil, errUnexpectedLength(typ, length)
	}
	sub, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	switch sub {
	case 0:
		return requireFixed(typ, length, 8, AuthenticationOk{})
	case 2:
		return requireFixed(typ, length, 8, AuthenticationKerberosV5{})
	case 3:
		return requireFixed(typ, length, 8, AuthenticationCleartextPassword{})
	case 5:
		if length != 12 {
			return nil, errUnexpectedLength(typ, length)
		}
		salt, err := b.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		var s [4]byte
		copy(s[:], salt)
		return AuthenticationMD5Password{Salt: s}, nil
	case 7:
		return requireFixed(typ, length, 8, AuthenticationGSS{})
	case 8:
		return AuthenticationGSSContinue{Data: b.Remaining()}, nil
	case 9:
		return requireFixed(typ, length, 8, AuthenticationSSPI{})
	case 10:
		mechs, err := decodeNULSeparatedList(b)
		if err != nil {
			return nil, err
		}
		return AuthenticationSASL{Mechanisms: mechs}, nil
	case 11:
		return AuthenticationSASLContinue{Data: b.Remaining()}, nil
	case 12:
		return AuthenticationSASLFinal{Outcome: b.Remaining()}, nil
	default:
		return nil, errUnknownSubMessage(typ, length, sub)
	}
}

// decodeNULSeparatedList reads a run of NUL-terminated strings until an
// extra terminating 0 byte, matching the AuthenticationSASL mechanism
// list's "name\0name\0\0" framing (spec.md §4.2).
func decodeNULSeparatedList(b *wire.Cursor) ([]string, error) {
	var out []string
	for {
		rest := b.Remaining()
		if len(rest) == 0 {
			return out, nil
		}
		if rest[0] == 0 {
			b.ReadByte()
			return out, nil
		}
		s, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

func decodeCopyResponse(typ byte, length int, b *wire.Cursor) (BackendMessage, error) {
	if length < 4+1+2 {
		return nil, errUnexpectedLength(typ, length)
	}
	formatByte, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	format, err := decodeValueFormat(int16(formatByte))
	if err != nil {
		return nil, err
	}
	colCount, err := b.ReadInt16()
	if err != nil {
		return nil, err
	}
	colFormats := make([]ValueFormat, colCount)
	for i := range colFormats {
		v, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		cf, err := decodeValueFormat(v)
		if err != nil {
			return nil, err
		}
		colFormats[i] = cf
	}
	resp := CopyResponse{Format: format, ColumnFormats: colFormats}
	switch typ {
	case typeCopyInResponse:
		resp.Kind = CopyIn
	case typeCopyOutResponse:
		resp.Kind = CopyOut
	case typeCopyBothResponse:
		resp.Kind = CopyBoth
	default:
		return nil, errUnknownMessage(typ)
	}
	return resp, nil
}

func decodeDataRow(b *wire.Cursor) (BackendMessage, error) {
	colCount, err := b.ReadInt16()
	if err != nil {
		return nil, err
	}
	values := make([][]byte, colCount)
	for i := range values {
		length, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		if length == -1 {
			values[i] = nil
			continue
		}
		v, err := b.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return DataRow{Values: values}, nil
}

func decodeErrorFields(b *wire.Cursor) ([]ErrorField, error) {
	var fields []ErrorField
	for {
		ft, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		if ft == 0 {
			return fields, nil
		}
		v, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		fields = append(fields, ErrorField{Type: ft, Value: v})
	}
}

func decodeFunctionCallResponse(typ byte, length int, b *wire.Cursor) (BackendMessage, error) {
	if length < 8 {
		return nil, errUnexpectedLength(typ, length)
	}
	l, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return FunctionCallResponse{Value: nil}, nil
	}
	v, err := b.ReadBytes(int(l))
	if err != nil {
		return nil, err
	}
	return FunctionCallResponse{Value: v}, nil
}

func decodeNegotiateProtocolVersion(typ byte, length int, b *wire.Cursor) (BackendMessage, error) {
	if length < 12 {
		return nil, errUnexpectedLength(typ, length)
	}
	newest, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	count, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	opts := make([]string, count)
	for i := range opts {
		s, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		opts[i] = s
	}
	return NegotiateProtocolVersion{NewestProtocolVersion: newest, ProtocolOptions: opts}, nil
}

func decodeNotificationResponse(b *wire.Cursor) (BackendMessage, error) {
	pid, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	channel, err := b.ReadCString()
	if err != nil {
		return nil, err
	}
	payload, err := b.ReadCString()
	if err != nil {
		return nil, err
	}
	return NotificationResponse{ProcessID: pid, Channel: channel, Payload: payload}, nil
}

func decodeParameterDescription(b *wire.Cursor) (BackendMessage, error) {
	count, err := b.ReadInt16()
	if err != nil {
		return nil, err
	}
	types := make([]int32, count)
	for i := range types {
		t, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return ParameterDescription{Types: types}, nil
}

func decodeRowDescription(b *wire.Cursor) (BackendMessage, error) {
	count, err := b.ReadInt16()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldDescription, count)
	for i := range fields {
		name, err := b.ReadCString()
		if err != nil {
			return nil, err
		}
		tableOID, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		attrNo, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		typeOID, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		typeSize, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		typeMod, err := b.ReadInt32()
		if err != nil {
			return nil, err
		}
		formatVal, err := b.ReadInt16()
		if err != nil {
			return nil, err
		}
		format, err := decodeValueFormat(formatVal)
		if err != nil {
			return nil, err
		}
		fields[i] = FieldDescription{
			Name:         name,
			TableOID:     tableOID,
			ColumnAttrNo: attrNo,
			TypeOID:      typeOID,
			TypeSize:     typeSize,
			TypeModifier: typeMod,
			Format:       format,
		}
	}
	return RowDescription{Fields: fields}, nil
}
