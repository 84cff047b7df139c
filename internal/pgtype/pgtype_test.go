package pgtype

import (
	"math/big"
	"testing"
)

func numericFromText(t *testing.T, text string) Numeric {
	t.Helper()
	codec, ok := Lookup(OIDNumeric)
	if !ok {
		t.Fatal("no numeric codec registered")
	}
	v, err := codec.DecodeText(text)
	if err != nil {
		t.Fatalf("DecodeText(%q) error: %v", text, err)
	}
	return v.(Numeric)
}

func TestNumericTextBinaryRoundTrip(t *testing.T) {
	codec, ok := Lookup(OIDNumeric)
	if !ok {
		t.Fatal("no numeric codec registered")
	}
	cases := []string{
		"123.456",
		"-789.012",
		"999999999.999999999",
		"0.000000001",
		"0",
		"0.0",
		"-0.5",
		"10000",
		"1.0000",
	}
	for _, text := range cases {
		n := numericFromText(t, text)
		bin, err := codec.EncodeBinary(n)
		if err != nil {
			t.Fatalf("%s: EncodeBinary error: %v", text, err)
		}
		back, err := codec.DecodeBinary(bin)
		if err != nil {
			t.Fatalf("%s: DecodeBinary error: %v", text, err)
		}
		got := back.(Numeric)
		if got.Scale != n.Scale {
			t.Errorf("%s: scale mismatch: want %d got %d", text, n.Scale, got.Scale)
		}
		if got.Mantissa.Cmp(n.Mantissa) != 0 {
			t.Errorf("%s: mantissa mismatch: want %s got %s", text, n.Mantissa, got.Mantissa)
		}
		outText, err := codec.EncodeText(got)
		if err != nil {
			t.Fatalf("%s: EncodeText error: %v", text, err)
		}
		reparsed := numericFromText(t, outText)
		if reparsed.Mantissa.Cmp(n.Mantissa) != 0 || reparsed.Scale != n.Scale {
			t.Errorf("%s: text round-trip mismatch: got %q", text, outText)
		}
	}
}

func TestNumericRejectsNaN(t *testing.T) {
	codec, _ := Lookup(OIDNumeric)
	nanWire := []byte{0, 0, 0, 0, 0xC0, 0x00, 0, 0}
	if _, err := codec.DecodeBinary(nanWire); err == nil {
		t.Fatal("expected error decoding NUMERIC NaN")
	}
}

func TestNumericPreciseValue(t *testing.T) {
	n := numericFromText(t, "999999999.999999999")
	want, _ := new(big.Int).SetString("999999999999999999", 10)
	if n.Mantissa.Cmp(want) != 0 || n.Scale != 9 {
		t.Fatalf("unexpected mantissa/scale: %s / %d", n.Mantissa, n.Scale)
	}
}

func TestInt2ArrayWithNull(t *testing.T) {
	codec, ok := Lookup(OIDInt2Array)
	if !ok {
		t.Fatal("no int2 array codec registered")
	}
	v, err := codec.DecodeText("{1,null,3}")
	if err != nil {
		t.Fatalf("DecodeText error: %v", err)
	}
	arr := v.(Array)
	if len(arr.Elements) != 3 {
		t.Fatalf("want 3 elements, got %d", len(arr.Elements))
	}
	if arr.Elements[0] != int16(1) || arr.Elements[1] != nil || arr.Elements[2] != int16(3) {
		t.Fatalf("unexpected elements: %#v", arr.Elements)
	}

	bin, err := codec.EncodeBinary(arr)
	if err != nil {
		t.Fatalf("EncodeBinary error: %v", err)
	}
	back, err := codec.DecodeBinary(bin)
	if err != nil {
		t.Fatalf("DecodeBinary error: %v", err)
	}
	backArr := back.(Array)
	if backArr.Elements[0] != int16(1) || backArr.Elements[1] != nil || backArr.Elements[2] != int16(3) {
		t.Fatalf("round-trip mismatch: %#v", backArr.Elements)
	}
}

func TestBoolTextBinaryRoundTrip(t *testing.T) {
	codec, _ := Lookup(OIDBool)
	for _, b := range []bool{true, false} {
		text, _ := codec.EncodeText(b)
		back, err := codec.DecodeText(text)
		if err != nil || back.(bool) != b {
			t.Fatalf("bool round-trip failed for %v: %v %v", b, back, err)
		}
		bin, _ := codec.EncodeBinary(b)
		backBin, err := codec.DecodeBinary(bin)
		if err != nil || backBin.(bool) != b {
			t.Fatalf("bool binary round-trip failed for %v", b)
		}
	}
}

func TestInetTextBinaryRoundTrip(t *testing.T) {
	codec, _ := Lookup(OIDInet)
	cases := []string{"127.0.0.1", "192.168.1.1/24", "::1", "2001:db8::/32", "10.0.0.0/8"}
	for _, text := range cases {
		v, err := codec.DecodeText(text)
		if err != nil {
			t.Fatalf("%s: DecodeText error: %v", text, err)
		}
		bin, err := codec.EncodeBinary(v)
		if err != nil {
			t.Fatalf("%s: EncodeBinary error: %v", text, err)
		}
		back, err := codec.DecodeBinary(bin)
		if err != nil {
			t.Fatalf("%s: DecodeBinary error: %v", text, err)
		}
		outText, err := codec.EncodeText(back)
		if err != nil {
			t.Fatalf("%s: EncodeText error: %v", text, err)
		}
		if outText != text {
			t.Errorf("inet round-trip mismatch: want %q got %q", text, outText)
		}
	}
}

func TestJSONBVersionByte(t *testing.T) {
	codec, _ := Lookup(OIDJSONB)
	bin, err := codec.EncodeBinary(`{"a":1}`)
	if err != nil {
		t.Fatalf("EncodeBinary error: %v", err)
	}
	if bin[0] != jsonbVersion {
		t.Fatalf("expected version byte %d, got %d", jsonbVersion, bin[0])
	}
	if _, err := codec.DecodeBinary([]byte{2, '{', '}'}); err == nil {
		t.Fatal("expected error decoding unsupported jsonb version")
	}
}

func TestTimestampEpochRoundTrip(t *testing.T) {
	codec, _ := Lookup(OIDTimestamp)
	v, err := codec.DecodeText("2000-01-01 00:00:00")
	if err != nil {
		t.Fatalf("DecodeText error: %v", err)
	}
	bin, err := codec.EncodeBinary(v)
	if err != nil {
		t.Fatalf("EncodeBinary error: %v", err)
	}
	for _, b := range bin {
		if b != 0 {
			t.Fatalf("expected all-zero binary for PostgreSQL epoch, got %x", bin)
		}
	}
}
