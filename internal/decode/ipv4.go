package decode

import (
	"net/netip"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	ipv4MinHeaderLen = 20

	ipv4TotalLengthOffset    = 2
	ipv4IdentificationOffset = 4
	ipv4FragmentOffset       = 6
	ipv4TTLOffset            = 8
	ipv4ProtocolOffset       = 9
	ipv4ChecksumOffset       = 10
	ipv4SrcAddrOffset        = 12
	ipv4DstAddrOffset        = 16
)

// FragmentKey identifies the datagram a fragment belongs to.
//
// The zero FragmentKey compares equal to itself but never to a key
// derived from a real packet; it exists so the type can live in
// collections.
type FragmentKey struct {
	Src            netip.Addr
	Dst            netip.Addr
	Protocol       uint8
	Identification uint16
}

// IPv4 decodes an IPv4 packet or fragment.
//
// The header checksum is not validated.
type IPv4 struct {
	view netbuf.View
}

// NewIPv4 attaches to the given view.
func NewIPv4(view netbuf.View) (*IPv4, error) {
	const where = "decode.NewIPv4"
	if view.Size() < ipv4MinHeaderLen {
		return nil, &core.TooShortError{Needed: ipv4MinHeaderLen, Available: view.Size(), Where: where}
	}
	if view.Uint8(0)>>4 != 4 {
		return nil, &core.MalformedError{Where: where, Detail: "version is not 4"}
	}
	return &IPv4{view: view}, nil
}

// Version returns the IP version nibble (always 4 after construction).
func (d *IPv4) Version() uint8 { return d.view.Uint8(0) >> 4 }

// HeaderLen returns the header length in bytes (IHL * 4).
func (d *IPv4) HeaderLen() int { return int(d.view.Uint8(0)&0x0F) * 4 }

// TotalLen returns the datagram total length from the header.
func (d *IPv4) TotalLen() int { return int(d.view.Uint16(ipv4TotalLengthOffset)) }

// Identification returns the identification field.
func (d *IPv4) Identification() uint16 { return d.view.Uint16(ipv4IdentificationOffset) }

// FragmentOffsetBytes returns the fragment offset converted to bytes.
func (d *IPv4) FragmentOffsetBytes() int {
	return int(d.view.Uint16(ipv4FragmentOffset)&0x1FFF) * 8
}

// MoreFragments reports the MF flag (bit 13).
func (d *IPv4) MoreFragments() bool {
	return d.view.Uint16(ipv4FragmentOffset)>>13&1 != 0
}

// DontFragment reports the DF flag (bit 14).
func (d *IPv4) DontFragment() bool {
	return d.view.Uint16(ipv4FragmentOffset)>>14&1 != 0
}

// TTL returns the time-to-live field.
func (d *IPv4) TTL() uint8 { return d.view.Uint8(ipv4TTLOffset) }

// Protocol returns the payload protocol number.
func (d *IPv4) Protocol() uint8 { return d.view.Uint8(ipv4ProtocolOffset) }

// SrcAddr returns the source address.
func (d *IPv4) SrcAddr() netip.Addr { return d.view.Addr(ipv4SrcAddrOffset) }

// DstAddr returns the destination address.
func (d *IPv4) DstAddr() netip.Addr { return d.view.Addr(ipv4DstAddrOffset) }

// DataLen returns the payload length in bytes.
func (d *IPv4) DataLen() int { return d.TotalLen() - d.HeaderLen() }

// Data returns a view over the payload.
func (d *IPv4) Data() (netbuf.View, error) {
	return d.view.SubLen(d.HeaderLen(), d.DataLen())
}

// Packet returns the original view.
func (d *IPv4) Packet() netbuf.View { return d.view }

// IsUDP reports whether the payload protocol is UDP.
func (d *IPv4) IsUDP() bool { return d.Protocol() == core.ProtocolUDP }

// IsTCP reports whether the payload protocol is TCP.
func (d *IPv4) IsTCP() bool { return d.Protocol() == core.ProtocolTCP }

// IsSCTP reports whether the payload protocol is SCTP.
func (d *IPv4) IsSCTP() bool { return d.Protocol() == core.ProtocolSCTP }

// IsFragment reports whether this packet is a fragment.
func (d *IPv4) IsFragment() bool {
	return d.FragmentOffsetBytes() > 0 || d.MoreFragments()
}

// IsLastFragment reports whether this is the final fragment of a
// fragmented datagram.
func (d *IPv4) IsLastFragment() bool {
	return d.FragmentOffsetBytes() > 0 && !d.MoreFragments()
}

// FragKey returns the reassembly key of this packet.
func (d *IPv4) FragKey() FragmentKey {
	return FragmentKey{
		Src:            d.SrcAddr(),
		Dst:            d.DstAddr(),
		Protocol:       d.Protocol(),
		Identification: d.Identification(),
	}
}

// FragRange returns the byte range covered by this fragment's payload.
func (d *IPv4) FragRange() Range {
	first := d.FragmentOffsetBytes()
	return Range{First: first, Last: first + d.DataLen()}
}
