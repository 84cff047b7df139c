package pgtype

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Array is a single-dimension PostgreSQL array value. Elements is nil at
// an index where the source array held NULL. Multi-dimensional arrays are
// a non-goal per spec.md §4.6/§7.
type Array struct {
	ElementOID int32
	Elements   []any
}

// arrayOIDForElement maps a scalar element OID to its corresponding
// one-dimensional array OID, covering the types spec.md §4.6 lists as
// "array capable in this client".
var arrayOIDForElement = map[int32]int32{
	OIDBool:        OIDBoolArray,
	OIDInt2:        OIDInt2Array,
	OIDInt4:        OIDInt4Array,
	OIDInt8:        OIDInt8Array,
	OIDText:        OIDTextArray,
	OIDVarchar:     OIDVarcharArray,
	OIDFloat4:      OIDFloat4Array,
	OIDFloat8:      OIDFloat8Array,
	OIDDate:        OIDDateArray,
	OIDTimestamp:   OIDTimestampArray,
	OIDTimestampTZ: OIDTimestampTZArray,
	OIDNumeric:     OIDNumericArray,
	OIDJSONB:       OIDJSONBArray,
	OIDBytea:       OIDByteaArray,
}

var elementOIDForArray = func() map[int32]int32 {
	m := make(map[int32]int32, len(arrayOIDForElement))
	for elem, arr := range arrayOIDForElement {
		m[arr] = elem
	}
	return m
}()

func init() {
	for elemOID, arrOID := range arrayOIDForElement {
		elemOID := elemOID
		arrOID := arrOID
		register(&Codec{
			OID: arrOID, Name: "array",
			DecodeText:   func(raw string) (any, error) { return decodeArrayText(raw, elemOID) },
			DecodeBinary: func(raw []byte) (any, error) { return decodeArrayBinary(raw, elemOID) },
			EncodeText:   func(v any) (string, error) { return encodeArrayText(v.(Array)) },
			EncodeBinary: func(v any) ([]byte, error) { return encodeArrayBinary(v.(Array)) },
		})
	}
}

// decodeArrayBinary reads ndim/has_null_bitmap/element_oid, a single
// dimension's size/lower_bound, then length-prefixed element payloads
// (-1 length meaning NULL), exactly per spec.md §4.6's array row.
func decodeArrayBinary(raw []byte, elementOID int32) (Array, error) {
	if len(raw) < 12 {
		return Array{}, fmt.Errorf("pgtype: array binary data too short")
	}
	ndim := int32(binary.BigEndian.Uint32(raw[0:4]))
	// has_null_bitmap occupies raw[4:8]; its value does not change framing,
	// since each element always carries its own length prefix.
	declaredElemOID := int32(binary.BigEndian.Uint32(raw[8:12]))
	if declaredElemOID != elementOID {
		return Array{}, fmt.Errorf("pgtype: array element OID mismatch: wire says %d, codec is for %d", declaredElemOID, elementOID)
	}
	if ndim == 0 {
		return Array{ElementOID: elementOID}, nil
	}
	if ndim != 1 {
		return Array{}, fmt.Errorf("pgtype: multi-dimensional arrays are not supported (ndim=%d)", ndim)
	}

	off := 12
	if len(raw) < off+8 {
		return Array{}, fmt.Errorf("pgtype: array binary data truncated in dimension header")
	}
	size := int32(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 8 // size + lower_bound

	codec, ok := Lookup(elementOID)
	if !ok {
		return Array{}, fmt.Errorf("pgtype: no codec registered for array element OID %d", elementOID)
	}

	elements := make([]any, size)
	for i := int32(0); i < size; i++ {
		if len(raw) < off+4 {
			return Array{}, fmt.Errorf("pgtype: array binary data truncated reading element %d length", i)
		}
		length := int32(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4
		if length < 0 {
			elements[i] = nil
			continue
		}
		if len(raw) < off+int(length) {
			return Array{}, fmt.Errorf("pgtype: array binary data truncated reading element %d payload", i)
		}
		v, err := codec.DecodeBinary(raw[off : off+int(length)])
		if err != nil {
			return Array{}, fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		elements[i] = v
		off += int(length)
	}
	return Array{ElementOID: elementOID, Elements: elements}, nil
}

func encodeArrayBinary(a Array) ([]byte, error) {
	codec, ok := Lookup(a.ElementOID)
	if !ok {
		return nil, fmt.Errorf("pgtype: no codec registered for array element OID %d", a.ElementOID)
	}
	var hasNull int32
	for _, e := range a.Elements {
		if e == nil {
			hasNull = 1
			break
		}
	}

	out := make([]byte, 0, 20+len(a.Elements)*8)
	if len(a.Elements) == 0 {
		out = binary.BigEndian.AppendUint32(out, 0) // ndim
		out = binary.BigEndian.AppendUint32(out, uint32(hasNull))
		out = binary.BigEndian.AppendUint32(out, uint32(a.ElementOID))
		return out, nil
	}
	out = binary.BigEndian.AppendUint32(out, 1) // ndim
	out = binary.BigEndian.AppendUint32(out, uint32(hasNull))
	out = binary.BigEndian.AppendUint32(out, uint32(a.ElementOID))
	out = binary.BigEndian.AppendUint32(out, uint32(len(a.Elements)))
	out = binary.BigEndian.AppendUint32(out, 1) // lower_bound

	for i, e := range a.Elements {
		if e == nil {
			out = binary.BigEndian.AppendUint32(out, 0xFFFFFFFF) // -1
			continue
		}
		payload, err := codec.EncodeBinary(e)
		if err != nil {
			return nil, fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
		out = append(out, payload...)
	}
	return out, nil
}

// decodeArrayText parses PostgreSQL's '{a,b,c}' array literal syntax,
// with quoted elements supporting the same backslash escaping the server
// uses and a bare `NULL` token meaning SQL NULL, per spec.md §4.6.
func decodeArrayText(raw string, elementOID int32) (Array, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '{' || raw[len(raw)-1] != '}' {
		return Array{}, fmt.Errorf("pgtype: invalid array text %q", raw)
	}
	body := raw[1 : len(raw)-1]
	tokens, err := splitArrayElements(body)
	if err != nil {
		return Array{}, err
	}
	codec, ok := Lookup(elementOID)
	if !ok {
		return Array{}, fmt.Errorf("pgtype: no codec registered for array element OID %d", elementOID)
	}

	elements := make([]any, len(tokens))
	for i, tok := range tokens {
		if tok.isNull {
			elements[i] = nil
			continue
		}
		v, err := codec.DecodeText(tok.text)
		if err != nil {
			return Array{}, fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		elements[i] = v
	}
	return Array{ElementOID: elementOID, Elements: elements}, nil
}

type arrayToken struct {
	text   string
	isNull bool
}

func splitArrayElements(body string) ([]arrayToken, error) {
	if body == "" {
		return nil, nil
	}
	var tokens []arrayToken
	var cur strings.Builder
	inQuotes := false
	quoted := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuotes && c == '\\':
			if i+1 >= len(body) {
				return nil, fmt.Errorf("pgtype: invalid array text: trailing backslash")
			}
			cur.WriteByte(body[i+1])
			i++
		case inQuotes && c == '"':
			inQuotes = false
		case !inQuotes && c == '"':
			inQuotes = true
			quoted = true
		case !inQuotes && c == ',':
			tokens = append(tokens, finishToken(cur.String(), quoted))
			cur.Reset()
			quoted = false
		default:
			cur.WriteByte(c)
		}
	}
	tokens = append(tokens, finishToken(cur.String(), quoted))
	return tokens, nil
}

func finishToken(text string, quoted bool) arrayToken {
	if !quoted && strings.EqualFold(text, "NULL") {
		return arrayToken{isNull: true}
	}
	return arrayToken{text: text}
}

func encodeArrayText(a Array) (string, error) {
	codec, ok := Lookup(a.ElementOID)
	if !ok {
		return "", fmt.Errorf("pgtype: no codec registered for array element OID %d", a.ElementOID)
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range a.Elements {
		if i > 0 {
			sb.WriteByte(',')
		}
		if e == nil {
			sb.WriteString("NULL")
			continue
		}
		text, err := codec.EncodeText(e)
		if err != nil {
			return "", fmt.Errorf("pgtype: array element %d: %w", i, err)
		}
		sb.WriteByte('"')
		sb.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String(), nil
}

// ArrayOIDFor returns the one-dimensional array OID registered for a
// scalar element OID, used by callers building Array values for
// parameter binding.
func ArrayOIDFor(elementOID int32) (int32, bool) {
	oid, ok := arrayOIDForElement[elementOID]
	return oid, ok
}

// ElementOIDFor returns the scalar element OID for an array OID.
func ElementOIDFor(arrayOID int32) (int32, bool) {
	oid, ok := elementOIDForArray[arrayOID]
	return oid, ok
}
