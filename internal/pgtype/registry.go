// Package pgtype implements spec.md §4.6: bidirectional text/binary
// conversion for the ~30 PostgreSQL scalar, array, JSON, numeric,
// date/time, and network types, registered by OID and looked up in O(1),
// exactly as spec.md §9's "type registry" design note calls for.
package pgtype

import "fmt"

// OIDs of every type spec.md §4.6 names.
const (
	OIDBool        = 16
	OIDChar        = 18 // "char" (single byte), not varchar
	OIDName        = 19
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDJSON        = 114
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDInet        = 869
	OIDBytea       = 17
	OIDVarchar     = 1043
	OIDDate        = 1082
	OIDTime        = 1083
	OIDTimestamp   = 1114
	OIDTimestampTZ = 1184
	OIDNumeric     = 1700
	OIDJSONB       = 3802
	OIDCIDR        = 650

	// Array OIDs, one per element type spec.md §4.6 lists as "array"
	// capable in this client.
	OIDBoolArray        = 1000
	OIDInt2Array        = 1005
	OIDInt4Array        = 1007
	OIDTextArray        = 1009
	OIDVarcharArray     = 1015
	OIDInt8Array        = 1016
	OIDFloat4Array      = 1021
	OIDFloat8Array      = 1022
	OIDDateArray        = 1182
	OIDTimestampArray   = 1115
	OIDTimestampTZArray = 1185
	OIDNumericArray     = 1231
	OIDJSONBArray       = 3807
	OIDByteaArray       = 1001
)

// ErrNull is returned by a ToNative/FromNative conversion attempted on a
// SQL NULL where the target Go type cannot represent "absent" (spec.md
// §4.6: "a nullable wrapper turns [NULLs] into the absent variant").
// Callers reading into a nullable wrapper (pointer, sql.Null*) never see
// this — it only applies to conversions into a bare value type.
var ErrNull = fmt.Errorf("pgtype: unexpected NULL value")

// Codec converts one PostgreSQL type to and from its text and binary wire
// representations. Implementations are value-less function groups, not
// objects, mirroring spec.md §4.6's "two pairs of functions" description.
type Codec struct {
	// OID is the type OID the codec is registered under: the scalar's own
	// OID, or for an array codec the array type's OID (each array codec
	// has its element OID fixed when it is registered).
	OID int32
	// Name is the PostgreSQL type name, used by the schema reader/DDL
	// emitter layers (internal/schema, internal/ddlgen) for column types.
	Name string

	DecodeText   func(raw string) (any, error)
	DecodeBinary func(raw []byte) (any, error)
	EncodeText   func(v any) (string, error)
	EncodeBinary func(v any) ([]byte, error)
	// HasBinary reports whether EncodeBinary/DecodeBinary are meaningful
	// for this codec. A handful of types (notably numeric edge cases are
	// not among them; every listed scalar type does have a binary
	// encoding) would set this false; kept for extensibility per spec.md
	// §4.5's "unless the value encoder reports that its type has no
	// binary encoding".
	HasBinary bool
}

// registry maps OID to Codec, populated by the package's init functions,
// giving O(1) lookup per spec.md §9.
var registry = map[int32]*Codec{}

func register(c *Codec) {
	c.HasBinary = c.EncodeBinary != nil
	registry[c.OID] = c
}

// Lookup returns the codec registered for oid, if any.
func Lookup(oid int32) (*Codec, bool) {
	c, ok := registry[oid]
	return c, ok
}

// Accepts reports whether oid has a registered codec — the Go analog of
// spec.md §4.6's per-type accepts(oid)->bool predicate, made a registry
// method since every codec here is keyed 1:1 by OID.
func Accepts(oid int32) bool {
	_, ok := registry[oid]
	return ok
}

func init() {
	registerScalars()
	registerNumeric()
	registerDateTime()
	registerJSON()
	registerNetwork()
}
