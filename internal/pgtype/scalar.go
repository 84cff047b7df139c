package pgtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func registerScalars() {
	register(&Codec{
		OID: OIDBool, Name: "bool",
		DecodeText: func(raw string) (any, error) {
			switch raw {
			case "t":
				return true, nil
			case "f":
				return false, nil
			default:
				return nil, fmt.Errorf("pgtype: invalid bool text %q", raw)
			}
		},
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 1 {
				return nil, fmt.Errorf("pgtype: bool expects 1 byte, got %d", len(raw))
			}
			return raw[0] != 0, nil
		},
		EncodeText: func(v any) (string, error) {
			if v.(bool) {
				return "t", nil
			}
			return "f", nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			if v.(bool) {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		},
	})

	register(&Codec{
		OID: OIDChar, Name: "\"char\"",
		DecodeText:   func(raw string) (any, error) { return charFromText(raw) },
		DecodeBinary: func(raw []byte) (any, error) { return charFromBinary(raw) },
		EncodeText:   func(v any) (string, error) { return string(rune(v.(byte))), nil },
		EncodeBinary: func(v any) ([]byte, error) { return []byte{v.(byte)}, nil },
	})

	registerInt(OIDInt2, "int2", 2)
	registerInt(OIDInt4, "int4", 4)
	registerInt(OIDInt8, "int8", 8)

	register(&Codec{
		OID: OIDFloat4, Name: "float4",
		DecodeText: func(raw string) (any, error) {
			f, err := strconv.ParseFloat(raw, 32)
			return float32(f), err
		},
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 4 {
				return nil, fmt.Errorf("pgtype: float4 expects 4 bytes, got %d", len(raw))
			}
			return math.Float32frombits(binary.BigEndian.Uint32(raw)), nil
		},
		EncodeText: func(v any) (string, error) {
			return strconv.FormatFloat(float64(v.(float32)), 'g', -1, 32), nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(v.(float32)))
			return b[:], nil
		},
	})

	register(&Codec{
		OID: OIDFloat8, Name: "float8",
		DecodeText: func(raw string) (any, error) {
			return strconv.ParseFloat(raw, 64)
		},
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 8 {
				return nil, fmt.Errorf("pgtype: float8 expects 8 bytes, got %d", len(raw))
			}
			return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
		},
		EncodeText: func(v any) (string, error) {
			return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(v.(float64)))
			return b[:], nil
		},
	})

	registerText(OIDText, "text")
	registerText(OIDVarchar, "varchar")
	registerText(OIDName, "name")

	register(&Codec{
		OID: OIDBytea, Name: "bytea",
		DecodeText:   func(raw string) (any, error) { return decodeByteaText(raw) },
		DecodeBinary: func(raw []byte) (any, error) { return raw, nil },
		EncodeText:   func(v any) (string, error) { return encodeByteaText(v.([]byte)), nil },
		EncodeBinary: func(v any) ([]byte, error) { return v.([]byte), nil },
	})
}

func registerInt(oid int32, name string, size int) {
	register(&Codec{
		OID: oid, Name: name,
		DecodeText: func(raw string) (any, error) {
			n, err := strconv.ParseInt(raw, 10, size*8)
			if err != nil {
				return nil, err
			}
			return intOfSize(n, size), nil
		},
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != size {
				return nil, fmt.Errorf("pgtype: %s expects %d bytes, got %d", name, size, len(raw))
			}
			switch size {
			case 2:
				return int16(binary.BigEndian.Uint16(raw)), nil
			case 4:
				return int32(binary.BigEndian.Uint32(raw)), nil
			default:
				return int64(binary.BigEndian.Uint64(raw)), nil
			}
		},
		EncodeText: func(v any) (string, error) {
			return strconv.FormatInt(int64OfAny(v), 10), nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			n := int64OfAny(v)
			switch size {
			case 2:
				var b [2]byte
				binary.BigEndian.PutUint16(b[:], uint16(n))
				return b[:], nil
			case 4:
				var b [4]byte
				binary.BigEndian.PutUint32(b[:], uint32(n))
				return b[:], nil
			default:
				var b [8]byte
				binary.BigEndian.PutUint64(b[:], uint64(n))
				return b[:], nil
			}
		},
	})
}

func intOfSize(n int64, size int) any {
	switch size {
	case 2:
		return int16(n)
	case 4:
		return int32(n)
	default:
		return n
	}
}

func int64OfAny(v any) int64 {
	switch n := v.(type) {
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		panic(fmt.Sprintf("pgtype: not an integer: %T", v))
	}
}

func registerText(oid int32, name string) {
	register(&Codec{
		OID: oid, Name: name,
		DecodeText:   func(raw string) (any, error) { return raw, nil },
		DecodeBinary: func(raw []byte) (any, error) { return string(raw), nil },
		EncodeText:   func(v any) (string, error) { return v.(string), nil },
		EncodeBinary: func(v any) ([]byte, error) { return []byte(v.(string)), nil },
	})
}

func charFromText(raw string) (any, error) {
	if len(raw) == 0 {
		return byte(0), nil
	}
	return raw[0], nil
}

func charFromBinary(raw []byte) (any, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf(`pgtype: "char" expects 1 byte, got %d`, len(raw))
	}
	return raw[0], nil
}

// decodeByteaText accepts both the modern hex format (\x...) and the
// legacy escape format, matching what a PostgreSQL server may emit
// depending on bytea_output, per spec.md §4.6.
func decodeByteaText(raw string) ([]byte, error) {
	if strings.HasPrefix(raw, "\\x") {
		hexDigits := raw[2:]
		out := make([]byte, len(hexDigits)/2)
		for i := range out {
			hi := hexVal(hexDigits[i*2])
			lo := hexVal(hexDigits[i*2+1])
			if hi < 0 || lo < 0 {
				return nil, fmt.Errorf("pgtype: invalid bytea hex %q", raw)
			}
			out[i] = byte(hi<<4 | lo)
		}
		return out, nil
	}
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' {
			if i+1 < len(raw) && raw[i+1] == '\\' {
				out = append(out, '\\')
				i++
				continue
			}
			if i+3 < len(raw) {
				n, err := strconv.ParseUint(raw[i+1:i+4], 8, 8)
				if err == nil {
					out = append(out, byte(n))
					i += 3
					continue
				}
			}
			return nil, fmt.Errorf("pgtype: invalid bytea escape %q", raw)
		}
		out = append(out, raw[i])
	}
	return out, nil
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	default:
		return -1
	}
}

func encodeByteaText(raw []byte) string {
	var sb strings.Builder
	sb.WriteString("\\x")
	const hexDigits = "0123456789abcdef"
	for _, b := range raw {
		sb.WriteByte(hexDigits[b>>4])
		sb.WriteByte(hexDigits[b&0xf])
	}
	return sb.String()
}
