package pgtype

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// pgEpoch is the PostgreSQL reference instant for DATE/TIMESTAMP[TZ]
// binary encoding: 2000-01-01, per spec.md §4.6.
var pgEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const microsPerDay = int64(24 * 60 * 60 * 1_000_000)

func registerDateTime() {
	register(&Codec{
		OID: OIDDate, Name: "date",
		DecodeText: func(raw string) (any, error) {
			t, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("pgtype: invalid date text %q: %w", raw, err)
			}
			return t, nil
		},
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 4 {
				return nil, fmt.Errorf("pgtype: date expects 4 bytes, got %d", len(raw))
			}
			days := int32(binary.BigEndian.Uint32(raw))
			return pgEpoch.AddDate(0, 0, int(days)), nil
		},
		EncodeText: func(v any) (string, error) {
			return v.(time.Time).Format("2006-01-02"), nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			days := int32(daysBetween(pgEpoch, v.(time.Time)))
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(days))
			return b[:], nil
		},
	})

	register(&Codec{
		OID: OIDTime, Name: "time",
		DecodeText: func(raw string) (any, error) { return parseTimeOfDayText(raw) },
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 8 {
				return nil, fmt.Errorf("pgtype: time expects 8 bytes, got %d", len(raw))
			}
			micros := int64(binary.BigEndian.Uint64(raw))
			return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
		},
		EncodeText: func(v any) (string, error) { return formatTimeOfDayText(v.(time.Time)), nil },
		EncodeBinary: func(v any) ([]byte, error) {
			t := v.(time.Time)
			micros := int64(t.Hour())*3600_000_000 + int64(t.Minute())*60_000_000 +
				int64(t.Second())*1_000_000 + int64(t.Nanosecond())/1000
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(micros))
			return b[:], nil
		},
	})

	register(&Codec{
		OID: OIDTimestamp, Name: "timestamp",
		DecodeText: func(raw string) (any, error) { return parseTimestampText(raw, false) },
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 8 {
				return nil, fmt.Errorf("pgtype: timestamp expects 8 bytes, got %d", len(raw))
			}
			micros := int64(binary.BigEndian.Uint64(raw))
			return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
		},
		EncodeText: func(v any) (string, error) {
			return formatTimestampText(v.(time.Time), false), nil
		},
		EncodeBinary: func(v any) ([]byte, error) { return encodeTimestampBinary(v.(time.Time)) },
	})

	register(&Codec{
		OID: OIDTimestampTZ, Name: "timestamptz",
		DecodeText: func(raw string) (any, error) { return parseTimestampText(raw, true) },
		DecodeBinary: func(raw []byte) (any, error) {
			if len(raw) != 8 {
				return nil, fmt.Errorf("pgtype: timestamptz expects 8 bytes, got %d", len(raw))
			}
			micros := int64(binary.BigEndian.Uint64(raw))
			return pgEpoch.Add(time.Duration(micros) * time.Microsecond).UTC(), nil
		},
		EncodeText: func(v any) (string, error) {
			return formatTimestampText(v.(time.Time).UTC(), true), nil
		},
		EncodeBinary: func(v any) ([]byte, error) {
			return encodeTimestampBinary(v.(time.Time).UTC())
		},
	})
}

func daysBetween(epoch, t time.Time) int64 {
	d := t.UTC().Truncate(24 * time.Hour).Sub(epoch)
	return int64(d / (24 * time.Hour))
}

func encodeTimestampBinary(t time.Time) ([]byte, error) {
	d := t.Sub(pgEpoch)
	micros := d.Nanoseconds() / 1000
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(micros))
	return b[:], nil
}

func parseTimeOfDayText(raw string) (time.Time, error) {
	layout := "15:04:05"
	if strings.Contains(raw, ".") {
		layout = "15:04:05.999999"
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("pgtype: invalid time text %q: %w", raw, err)
	}
	return pgEpoch.Add(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())), nil
}

func formatTimeOfDayText(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("15:04:05")
	}
	return strings.TrimRight(strings.TrimRight(t.Format("15:04:05.000000"), "0"), ".")
}

func parseTimestampText(raw string, tz bool) (time.Time, error) {
	hasSub := strings.Contains(raw, ".")
	hasOffset := tz
	var layout string
	switch {
	case hasSub && hasOffset:
		layout = "2006-01-02 15:04:05.999999Z07:00"
	case hasSub && !hasOffset:
		layout = "2006-01-02 15:04:05.999999"
	case !hasSub && hasOffset:
		layout = "2006-01-02 15:04:05Z07:00"
	default:
		layout = "2006-01-02 15:04:05"
	}
	// PostgreSQL emits a bare offset like "+00" or "+05:30"; Go's Z07:00
	// requires a full "+00:00" — normalize a 3-char suffix before parsing.
	if hasOffset {
		raw = normalizePGOffset(raw)
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("pgtype: invalid timestamp text %q: %w", raw, err)
	}
	if tz {
		return t.UTC(), nil
	}
	return t, nil
}

// normalizePGOffset expands a trailing "+HH" offset to "+HH:00" so Go's
// Z07:00 layout can parse it, matching what PostgreSQL's default
// DateStyle emits for timestamptz text output.
func normalizePGOffset(raw string) string {
	idx := strings.LastIndexAny(raw, "+-")
	if idx < 0 {
		return raw
	}
	offset := raw[idx:]
	if strings.Contains(offset, ":") {
		return raw
	}
	return raw + ":00"
}

func formatTimestampText(t time.Time, tz bool) string {
	base := t.Format("2006-01-02 15:04:05")
	if t.Nanosecond() != 0 {
		frac := strings.TrimRight(t.Format(".000000"), "0")
		frac = strings.TrimSuffix(frac, ".")
		if frac != "" {
			base += frac
		}
	}
	if tz {
		base += "+00"
	}
	return base
}
