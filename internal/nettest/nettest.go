// Package nettest builds wire-format test frames for the decoder,
// processor and router tests.
package nettest

import (
	"encoding/binary"
	"net/netip"

	"github.com/epcnet/upf/internal/core"
)

// Eth wraps a payload in an Ethernet header.
func Eth(dst, src core.MACAddress, etherType uint16, payload []byte) []byte {
	frame := make([]byte, 14+len(payload))
	copy(frame[0:], dst[:])
	copy(frame[6:], src[:])
	binary.BigEndian.PutUint16(frame[12:], etherType)
	copy(frame[14:], payload)
	return frame
}

// IPv4 builds a minimal IPv4 packet (IHL 5, TTL 64, no fragmentation).
func IPv4(src, dst netip.Addr, proto uint8, payload []byte) []byte {
	return IPv4Frag(src, dst, proto, 0, 0, false, payload)
}

// IPv4Frag builds an IPv4 packet with explicit identification and
// fragmentation fields. fragOffset is in bytes and must be a multiple
// of 8.
func IPv4Frag(src, dst netip.Addr, proto uint8, id uint16, fragOffset int, moreFragments bool, payload []byte) []byte {
	packet := make([]byte, 20+len(payload))
	packet[0] = 0x45
	binary.BigEndian.PutUint16(packet[2:], uint16(20+len(payload)))
	binary.BigEndian.PutUint16(packet[4:], id)
	fragField := uint16(fragOffset / 8)
	if moreFragments {
		fragField |= 0x2000
	}
	binary.BigEndian.PutUint16(packet[6:], fragField)
	packet[8] = 64
	packet[9] = proto
	s := src.As4()
	d := dst.As4()
	copy(packet[12:], s[:])
	copy(packet[16:], d[:])
	copy(packet[20:], payload)
	return packet
}

// UDP builds a UDP datagram with a zero checksum.
func UDP(srcPort, dstPort uint16, payload []byte) []byte {
	dgram := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint16(dgram[0:], srcPort)
	binary.BigEndian.PutUint16(dgram[2:], dstPort)
	binary.BigEndian.PutUint16(dgram[4:], uint16(8+len(payload)))
	copy(dgram[8:], payload)
	return dgram
}

// GTPU builds a GTPv1-U T-PDU with no optional fields.
func GTPU(teid uint32, payload []byte) []byte {
	packet := make([]byte, 8+len(payload))
	packet[0] = 0x30
	packet[1] = core.GTPMessageTypeTPDU
	binary.BigEndian.PutUint16(packet[2:], uint16(len(payload)))
	binary.BigEndian.PutUint32(packet[4:], teid)
	copy(packet[8:], payload)
	return packet
}

// SCTPData builds an SCTP packet carrying a single DATA chunk with
// the B and E flags set (a complete message).
func SCTPData(srcPort, dstPort uint16, ppid uint32, payload []byte) []byte {
	return SCTPDataFlags(srcPort, dstPort, ppid, 0x03, payload)
}

// SCTPDataFlags is SCTPData with explicit chunk flags.
func SCTPDataFlags(srcPort, dstPort uint16, ppid uint32, flags uint8, payload []byte) []byte {
	chunkLen := 16 + len(payload)
	padded := chunkLen
	if padded%4 != 0 {
		padded = (padded/4 + 1) * 4
	}

	packet := make([]byte, 12+padded)
	binary.BigEndian.PutUint16(packet[0:], srcPort)
	binary.BigEndian.PutUint16(packet[2:], dstPort)
	binary.BigEndian.PutUint32(packet[4:], 0xDEADBEEF) // verification tag
	// checksum left zero: decoders do not validate it

	chunk := packet[12:]
	chunk[0] = core.SCTPChunkData
	chunk[1] = flags
	binary.BigEndian.PutUint16(chunk[2:], uint16(chunkLen))
	binary.BigEndian.PutUint32(chunk[4:], 1) // TSN
	binary.BigEndian.PutUint16(chunk[8:], 0)
	binary.BigEndian.PutUint16(chunk[10:], 0)
	binary.BigEndian.PutUint32(chunk[12:], ppid)
	copy(chunk[16:], payload)
	return packet
}

// Addr is a shorthand for netip.MustParseAddr.
func Addr(s string) netip.Addr { return netip.MustParseAddr(s) }

// Checksum computes the Internet checksum over data, for validating
// built packets against an independent implementation.
func Checksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i:]))
	}
	if len(data)%2 != 0 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}
