package encap

import (
	"net/netip"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

// EthPayloadOffset is where the IPv4 payload must already sit when
// using EthBuilder.SetPayloadInPlace.
const EthPayloadOffset = ethHeaderLen + ipv4HeaderLen + udpHeaderLen + gtpHeaderLen

// IPv4PayloadOffset is the SetPayloadInPlace offset for IPv4Builder.
const IPv4PayloadOffset = ipv4HeaderLen + udpHeaderLen + gtpHeaderLen

// EthBuilder composes an Ethernet frame carrying an IPv4 payload
// encapsulated in GTPv1-U over UDP over IPv4.
//
// Usage: Init, the fluent field setters, one of the SetPayload
// variants, ComputeChecksums, then Frame. SetPayload copies the
// payload into the composition buffer; SetPayloadInPlace assumes the
// caller already placed it at EthPayloadOffset and that the buffer is
// sized to end exactly at the payload's last byte.
type EthBuilder struct {
	builder
}

// NewEthBuilder creates a builder composing into the given view, which
// must have room for at least the 50 header bytes.
func NewEthBuilder(buf netbuf.WritableView) (*EthBuilder, error) {
	const where = "encap.NewEthBuilder"
	if buf.Size() < EthPayloadOffset {
		return nil, &core.TooShortError{Needed: EthPayloadOffset, Available: buf.Size(), Where: where}
	}
	return &EthBuilder{builder{buf: buf, ethLen: ethHeaderLen, udpSum: true}}, nil
}

// Init writes the header template for a new packet.
func (b *EthBuilder) Init() *EthBuilder { b.init(); return b }

// SetSrcMAC sets the source MAC address.
func (b *EthBuilder) SetSrcMAC(mac core.MACAddress) *EthBuilder {
	b.buf.SetMAC(6, mac)
	return b
}

// SetDstMAC sets the destination MAC address.
func (b *EthBuilder) SetDstMAC(mac core.MACAddress) *EthBuilder {
	b.buf.SetMAC(0, mac)
	return b
}

// SetSrcAddr sets the outer IPv4 source address.
func (b *EthBuilder) SetSrcAddr(a netip.Addr) *EthBuilder { b.setSrcAddr(a); return b }

// SetDstAddr sets the outer IPv4 destination address.
func (b *EthBuilder) SetDstAddr(a netip.Addr) *EthBuilder { b.setDstAddr(a); return b }

// SetIdentification sets the outer IPv4 identification field. Use an
// IdentificationSource to generate values.
func (b *EthBuilder) SetIdentification(v uint16) *EthBuilder { b.setIdentification(v); return b }

// SetSrcPort overrides the UDP source port (default 2152).
func (b *EthBuilder) SetSrcPort(p uint16) *EthBuilder { b.setSrcPort(p); return b }

// SetDstPort overrides the UDP destination port (default 2152).
func (b *EthBuilder) SetDstPort(p uint16) *EthBuilder { b.setDstPort(p); return b }

// SetTEID sets the tunnel endpoint identifier.
func (b *EthBuilder) SetTEID(t uint32) *EthBuilder { b.setTEID(t); return b }

// SetPayload copies the IPv4 payload into the composition buffer and
// updates the length fields.
func (b *EthBuilder) SetPayload(ipv4Data netbuf.View) error {
	return b.setPayload("encap.EthBuilder.SetPayload", ipv4Data)
}

// SetPayloadInPlace records that the payload is already in the buffer
// at EthPayloadOffset and updates the length fields.
func (b *EthBuilder) SetPayloadInPlace() error {
	return b.setPayloadInPlace("encap.EthBuilder.SetPayloadInPlace")
}

// ComputeChecksums fills in the UDP checksum (unless disabled) and the
// IPv4 header checksum.
func (b *EthBuilder) ComputeChecksums() *EthBuilder { b.computeChecksums(); return b }

// Frame returns the finished frame, narrowed to headers + payload.
func (b *EthBuilder) Frame() netbuf.View { return b.frame }

// IPv4Builder composes an IPv4 packet carrying an IPv4 payload
// encapsulated in GTPv1-U over UDP. Same state machine as EthBuilder,
// without the Ethernet header.
type IPv4Builder struct {
	builder
}

// NewIPv4Builder creates a builder composing into the given view,
// which must have room for at least the 36 header bytes.
func NewIPv4Builder(buf netbuf.WritableView) (*IPv4Builder, error) {
	const where = "encap.NewIPv4Builder"
	if buf.Size() < IPv4PayloadOffset {
		return nil, &core.TooShortError{Needed: IPv4PayloadOffset, Available: buf.Size(), Where: where}
	}
	return &IPv4Builder{builder{buf: buf, ethLen: 0, udpSum: true}}, nil
}

// Init writes the header template for a new packet.
func (b *IPv4Builder) Init() *IPv4Builder { b.init(); return b }

// SetSrcAddr sets the outer IPv4 source address.
func (b *IPv4Builder) SetSrcAddr(a netip.Addr) *IPv4Builder { b.setSrcAddr(a); return b }

// SetDstAddr sets the outer IPv4 destination address.
func (b *IPv4Builder) SetDstAddr(a netip.Addr) *IPv4Builder { b.setDstAddr(a); return b }

// SetIdentification sets the outer IPv4 identification field.
func (b *IPv4Builder) SetIdentification(v uint16) *IPv4Builder { b.setIdentification(v); return b }

// SetSrcPort overrides the UDP source port (default 2152).
func (b *IPv4Builder) SetSrcPort(p uint16) *IPv4Builder { b.setSrcPort(p); return b }

// SetDstPort overrides the UDP destination port (default 2152).
func (b *IPv4Builder) SetDstPort(p uint16) *IPv4Builder { b.setDstPort(p); return b }

// SetTEID sets the tunnel endpoint identifier.
func (b *IPv4Builder) SetTEID(t uint32) *IPv4Builder { b.setTEID(t); return b }

// SetPayload copies the IPv4 payload into the composition buffer and
// updates the length fields.
func (b *IPv4Builder) SetPayload(ipv4Data netbuf.View) error {
	return b.setPayload("encap.IPv4Builder.SetPayload", ipv4Data)
}

// SetPayloadInPlace records that the payload is already in the buffer
// at IPv4PayloadOffset and updates the length fields.
func (b *IPv4Builder) SetPayloadInPlace() error {
	return b.setPayloadInPlace("encap.IPv4Builder.SetPayloadInPlace")
}

// ComputeChecksums fills in the UDP checksum (unless disabled) and the
// IPv4 header checksum.
func (b *IPv4Builder) ComputeChecksums() *IPv4Builder { b.computeChecksums(); return b }

// Packet returns the finished packet, narrowed to headers + payload.
func (b *IPv4Builder) Packet() netbuf.View { return b.frame }

// IdentificationSource generates IPv4 identification values for
// freshly built packets. Inject one wherever new IPv4 traffic is
// produced.
type IdentificationSource struct {
	next uint16
}

// Next returns the next identification value.
func (s *IdentificationSource) Next() uint16 {
	v := s.next
	s.next++
	return v
}

// Peek returns the value Next will return, without consuming it.
func (s *IdentificationSource) Peek() uint16 { return s.next }
