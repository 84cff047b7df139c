package pgtype

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Inet represents a PostgreSQL INET/CIDR value: an address with an
// optional subnet prefix length, per spec.md §4.6. HasPrefix is false
// for a bare host address (no "/N" suffix on the wire).
type Inet struct {
	Addr      netip.Addr
	Prefix    int
	HasPrefix bool
}

func (n Inet) String() string {
	if !n.HasPrefix {
		return n.Addr.String()
	}
	return fmt.Sprintf("%s/%d", n.Addr, n.Prefix)
}

const (
	inetFamilyIPv4 = 2
	inetFamilyIPv6 = 3
)

func registerNetwork() {
	register(&Codec{
		OID: OIDInet, Name: "inet",
		DecodeText:   func(raw string) (any, error) { return parseInetText(raw) },
		DecodeBinary: func(raw []byte) (any, error) { return decodeInetBinary(raw) },
		EncodeText:   func(v any) (string, error) { return v.(Inet).String(), nil },
		EncodeBinary: func(v any) ([]byte, error) { return encodeInetBinary(v.(Inet)) },
	})

	register(&Codec{
		OID: OIDCIDR, Name: "cidr",
		DecodeText:   func(raw string) (any, error) { return parseInetText(raw) },
		DecodeBinary: func(raw []byte) (any, error) { return decodeInetBinary(raw) },
		EncodeText:   func(v any) (string, error) { return v.(Inet).String(), nil },
		EncodeBinary: func(v any) ([]byte, error) { return encodeInetBinary(v.(Inet)) },
	})
}

func parseInetText(raw string) (Inet, error) {
	raw = strings.TrimSpace(raw)
	if slash := strings.IndexByte(raw, '/'); slash >= 0 {
		addr, err := netip.ParseAddr(raw[:slash])
		if err != nil {
			return Inet{}, fmt.Errorf("pgtype: invalid inet address %q: %w", raw, err)
		}
		prefix, err := strconv.Atoi(raw[slash+1:])
		if err != nil {
			return Inet{}, fmt.Errorf("pgtype: invalid inet prefix %q: %w", raw, err)
		}
		return Inet{Addr: addr, Prefix: prefix, HasPrefix: true}, nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return Inet{}, fmt.Errorf("pgtype: invalid inet address %q: %w", raw, err)
	}
	return Inet{Addr: addr}, nil
}

// decodeInetBinary reads the [family][bits][is_cidr][addr_size][addr...]
// layout PostgreSQL uses for both INET and CIDR, per spec.md §4.6.
func decodeInetBinary(raw []byte) (Inet, error) {
	if len(raw) < 4 {
		return Inet{}, fmt.Errorf("pgtype: inet binary data too short: %d bytes", len(raw))
	}
	family := raw[0]
	bits := raw[1]
	addrSize := int(raw[3])
	if len(raw) < 4+addrSize {
		return Inet{}, fmt.Errorf("pgtype: inet binary data incomplete: expected %d address bytes", addrSize)
	}
	addrBytes := raw[4 : 4+addrSize]

	var addr netip.Addr
	var fullBits int
	switch family {
	case inetFamilyIPv4:
		if addrSize != 4 {
			return Inet{}, fmt.Errorf("pgtype: invalid IPv4 address size %d", addrSize)
		}
		var b [4]byte
		copy(b[:], addrBytes)
		addr = netip.AddrFrom4(b)
		fullBits = 32
	case inetFamilyIPv6:
		if addrSize != 16 {
			return Inet{}, fmt.Errorf("pgtype: invalid IPv6 address size %d", addrSize)
		}
		var b [16]byte
		copy(b[:], addrBytes)
		addr = netip.AddrFrom16(b)
		fullBits = 128
	default:
		return Inet{}, fmt.Errorf("pgtype: unknown inet address family %d", family)
	}

	if int(bits) == fullBits {
		return Inet{Addr: addr}, nil
	}
	return Inet{Addr: addr, Prefix: int(bits), HasPrefix: true}, nil
}

func encodeInetBinary(n Inet) ([]byte, error) {
	var family byte
	var addrBytes []byte
	var fullBits int
	switch {
	case n.Addr.Is4():
		family = inetFamilyIPv4
		b := n.Addr.As4()
		addrBytes = b[:]
		fullBits = 32
	case n.Addr.Is6():
		family = inetFamilyIPv6
		b := n.Addr.As16()
		addrBytes = b[:]
		fullBits = 128
	default:
		return nil, fmt.Errorf("pgtype: inet value has no valid address")
	}
	bits := fullBits
	if n.HasPrefix {
		bits = n.Prefix
	}
	out := make([]byte, 0, 4+len(addrBytes))
	out = append(out, family, byte(bits), 0, byte(len(addrBytes)))
	out = append(out, addrBytes...)
	return out, nil
}
