// Package encap implements in-place builders for GTPv1-U
// encapsulation frames and the plain Ethernet encapsulation sink.
package encap

import (
	"net/netip"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	ethHeaderLen  = 14
	ipv4HeaderLen = 20
	udpHeaderLen  = 8
	gtpHeaderLen  = 8

	// The largest IPv4 payload a GTPv1-U-over-IPv4 frame can carry:
	// the outer IPv4 total length is 16 bits.
	maxPayloadLen = 65535 - ipv4HeaderLen - udpHeaderLen - gtpHeaderLen
)

// gtpHeaderTemplate is the 36-byte IPv4+UDP+GTP header block written by
// Init: IPv4 version 4 / IHL 5 / TTL 64 / protocol UDP, both UDP ports
// 2152, GTP flags 0x38 (version 1, protocol type 1, reserved 1, no
// extra fields), message type 0xFF (T-PDU), all length and checksum
// fields zeroed.
var gtpHeaderTemplate = [ipv4HeaderLen + udpHeaderLen + gtpHeaderLen]byte{
	// IPv4 header
	0x45, 0x00, 0x00, 0x00, // version+IHL, DSCP, total length
	0x00, 0x00, 0x00, 0x00, // identification, flags+fragment offset
	0x40, 0x11, 0x00, 0x00, // TTL 64, protocol UDP, header checksum
	0x00, 0x00, 0x00, 0x00, // source address
	0x00, 0x00, 0x00, 0x00, // destination address
	// UDP header
	0x08, 0x68, 0x08, 0x68, // ports 2152/2152
	0x00, 0x00, 0x00, 0x00, // total length, checksum
	// GTPv1-U header
	0x38, 0xFF, 0x00, 0x00, // flags, message type T-PDU, message length
	0x00, 0x00, 0x00, 0x00, // TEID
}

// builder holds the state shared by the Ethernet-headed and
// IPv4-headed GTPv1-U encapsulators. All offsets are relative to the
// start of the composition buffer; ethLen is 14 for the Ethernet
// variant and 0 otherwise.
type builder struct {
	buf        netbuf.WritableView
	ethLen     int
	payloadLen int
	frame      netbuf.View
	udpSum     bool
}

func (b *builder) totalHeaderLen() int {
	return b.ethLen + ipv4HeaderLen + udpHeaderLen + gtpHeaderLen
}

func (b *builder) ipv4Start() int { return b.ethLen }
func (b *builder) udpStart() int  { return b.ethLen + ipv4HeaderLen }
func (b *builder) gtpStart() int  { return b.ethLen + ipv4HeaderLen + udpHeaderLen }

// PayloadOffset is the offset at which SetPayloadInPlace expects the
// IPv4 payload to already sit inside the composition buffer.
func (b *builder) PayloadOffset() int { return b.totalHeaderLen() }

func (b *builder) init() {
	if b.ethLen > 0 {
		for i := 0; i < 12; i++ {
			b.buf.SetUint8(i, 0)
		}
		b.buf.SetUint16(12, core.EtherTypeIPv4)
	}
	copy(b.buf.WritableBytes()[b.ethLen:], gtpHeaderTemplate[:])
	b.payloadLen = 0
	b.frame = netbuf.View{}
}

// EnableUDPChecksum turns UDP checksum computation on or off (default
// on). With it off, the UDP checksum field stays zero, which on IPv4
// means "no checksum".
func (b *builder) EnableUDPChecksum(enable bool) { b.udpSum = enable }

// UDPChecksumEnabled reports the current setting.
func (b *builder) UDPChecksumEnabled() bool { return b.udpSum }

func (b *builder) setSrcAddr(a netip.Addr) { b.buf.SetAddr(b.ipv4Start()+12, a) }
func (b *builder) setDstAddr(a netip.Addr) { b.buf.SetAddr(b.ipv4Start()+16, a) }
func (b *builder) setIdentification(v uint16) {
	b.buf.SetUint16(b.ipv4Start()+4, v)
}
func (b *builder) setSrcPort(p uint16) { b.buf.SetUint16(b.udpStart(), p) }
func (b *builder) setDstPort(p uint16) { b.buf.SetUint16(b.udpStart()+2, p) }
func (b *builder) setTEID(t uint32)    { b.buf.SetUint32(b.gtpStart()+4, t) }

// setLengths writes the GTP message length, the UDP total length and
// the IPv4 total length for the recorded payload length, and narrows
// the finished frame.
func (b *builder) setLengths() {
	gtpLen := b.payloadLen
	udpLen := gtpLen + gtpHeaderLen + udpHeaderLen
	b.buf.SetUint16(b.gtpStart()+2, uint16(gtpLen))
	b.buf.SetUint16(b.udpStart()+4, uint16(udpLen))
	b.buf.SetUint16(b.ipv4Start()+2, uint16(udpLen+ipv4HeaderLen))
	b.frame, _ = b.buf.SubLen(0, b.totalHeaderLen()+b.payloadLen)
}

func (b *builder) setPayload(where string, ipv4Data netbuf.View) error {
	if ipv4Data.Size() > maxPayloadLen {
		return &core.CapacityExceededError{Needed: ipv4Data.Size(), Available: maxPayloadLen, Where: where}
	}
	room := b.buf.Size() - b.totalHeaderLen()
	if ipv4Data.Size() > room {
		return &core.CapacityExceededError{Needed: ipv4Data.Size(), Available: room, Where: where}
	}
	copy(b.buf.WritableBytes()[b.totalHeaderLen():], ipv4Data.Bytes())
	b.payloadLen = ipv4Data.Size()
	b.setLengths()
	return nil
}

func (b *builder) setPayloadInPlace(where string) error {
	// The payload is already at PayloadOffset. Sanity-check that it at
	// least starts with an IPv4 version nibble.
	if b.buf.Size() > b.totalHeaderLen() {
		first, err := b.buf.Uint8At(b.totalHeaderLen())
		if err != nil {
			return err
		}
		if first>>4 != 4 {
			return &core.MalformedError{Where: where, Detail: "payload in buffer is not IPv4"}
		}
	}
	b.payloadLen = b.buf.Size() - b.totalHeaderLen()
	b.setLengths()
	return nil
}

// computeChecksums fills in the UDP checksum (when enabled) and the
// IPv4 header checksum. The one's-complement sum over the IPv4
// source/destination addresses and the protocol byte is shared between
// the UDP pseudo-header and the IPv4 header sums.
func (b *builder) computeChecksums() {
	raw := b.buf.Bytes()
	ipv4 := b.ipv4Start()
	udp := b.udpStart()

	udpTotalLen := uint32(raw[udp+4])<<8 | uint32(raw[udp+5])

	udpHdrSum := uint32(raw[udp])<<8 | uint32(raw[udp+1])
	udpHdrSum += uint32(raw[udp+2])<<8 | uint32(raw[udp+3])
	udpHdrSum += udpTotalLen

	var pseudoNoLen uint32
	for i := ipv4 + 12; i < ipv4+20; i += 2 {
		pseudoNoLen += uint32(raw[i])<<8 | uint32(raw[i+1])
	}
	pseudoNoLen += uint32(core.ProtocolUDP)

	if b.udpSum {
		payload, _ := b.buf.SubLen(b.gtpStart(), b.payloadLen+gtpHeaderLen)
		sum := pseudoNoLen + udpTotalLen + udpHdrSum + payload.Sum16()
		checksum := foldChecksum(sum)
		if checksum != 0xFFFF {
			checksum = ^checksum
		}
		b.buf.SetUint16(udp+6, checksum)
	}

	// Bytes 0..7 plus the TTL; the protocol byte and the addresses come
	// from the shared pseudo-header partial sum, and the checksum slot
	// counts as zero.
	var ipv4Sum uint32
	for i := ipv4; i < ipv4+8; i += 2 {
		ipv4Sum += uint32(raw[i])<<8 | uint32(raw[i+1])
	}
	ipv4Sum += uint32(raw[ipv4+8]) << 8
	ipv4Sum += pseudoNoLen
	checksum := foldChecksum(ipv4Sum)
	if checksum != 0xFFFF {
		checksum = ^checksum
	}
	b.buf.SetUint16(ipv4+10, checksum)
}

func foldChecksum(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return uint16(sum)
}
