package pgtype

import (
	"encoding/json"
	"fmt"
)

// jsonbVersion is the sole defined JSONB binary wire version; any other
// leading byte is rejected, per spec.md §4.6.
const jsonbVersion = 1

func registerJSON() {
	register(&Codec{
		OID: OIDJSON, Name: "json",
		DecodeText:   decodeJSONText,
		DecodeBinary: func(raw []byte) (any, error) { return decodeJSONText(string(raw)) },
		EncodeText:   encodeJSONText,
		EncodeBinary: func(v any) ([]byte, error) {
			text, err := encodeJSONText(v)
			if err != nil {
				return nil, err
			}
			return []byte(text), nil
		},
	})

	register(&Codec{
		OID: OIDJSONB, Name: "jsonb",
		DecodeText: decodeJSONText,
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) == 0 {
				return nil, fmt.Errorf("pgtype: jsonb data cannot be empty")
			}
			if raw[0] != jsonbVersion {
				return nil, fmt.Errorf("pgtype: unsupported jsonb version %d", raw[0])
			}
			return decodeJSONText(string(raw[1:]))
		},
		EncodeText: encodeJSONText,
		EncodeBinary: func(v any) ([]byte, error) {
			text, err := encodeJSONText(v)
			if err != nil {
				return nil, err
			}
			out := make([]byte, 0, len(text)+1)
			out = append(out, jsonbVersion)
			out = append(out, text...)
			return out, nil
		},
	})
}

// decodeJSONText validates and wraps raw JSON text as json.RawMessage,
// deferring structural interpretation to the caller — the client does not
// impose a single Go value shape on JSON columns, matching spec.md §4.6's
// "opaque to the codec beyond validity" treatment of JSON/JSONB.
func decodeJSONText(raw string) (any, error) {
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("pgtype: invalid JSON text %q", raw)
	}
	return json.RawMessage(raw), nil
}

func encodeJSONText(v any) (string, error) {
	switch j := v.(type) {
	case json.RawMessage:
		if !json.Valid(j) {
			return "", fmt.Errorf("pgtype: invalid JSON value")
		}
		return string(j), nil
	case string:
		if !json.Valid([]byte(j)) {
			return "", fmt.Errorf("pgtype: invalid JSON text %q", j)
		}
		return j, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("pgtype: failed to marshal JSON value: %w", err)
		}
		return string(b), nil
	}
}
