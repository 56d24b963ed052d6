package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	udpHeaderLen = 8

	udpSrcPortOffset     = 0
	udpDstPortOffset     = 2
	udpTotalLengthOffset = 4
	udpChecksumOffset    = 6
)

// UDP decodes a UDP datagram.
type UDP struct {
	view netbuf.View
}

// NewUDP attaches to the given view.
func NewUDP(view netbuf.View) (*UDP, error) {
	const where = "decode.NewUDP"
	if view.Size() < udpHeaderLen {
		return nil, &core.TooShortError{Needed: udpHeaderLen, Available: view.Size(), Where: where}
	}
	return &UDP{view: view}, nil
}

// SrcPort returns the source port.
func (d *UDP) SrcPort() uint16 { return d.view.Uint16(udpSrcPortOffset) }

// DstPort returns the destination port.
func (d *UDP) DstPort() uint16 { return d.view.Uint16(udpDstPortOffset) }

// TotalLen returns the total length field (header + payload).
func (d *UDP) TotalLen() int { return int(d.view.Uint16(udpTotalLengthOffset)) }

// Checksum returns the checksum field.
func (d *UDP) Checksum() uint16 { return d.view.Uint16(udpChecksumOffset) }

// DataLen returns the payload length.
func (d *UDP) DataLen() int { return d.TotalLen() - udpHeaderLen }

// Data returns a view over the payload.
func (d *UDP) Data() (netbuf.View, error) {
	return d.view.SubLen(udpHeaderLen, d.DataLen())
}

// IsGTPv1U reports whether the payload looks like GTPv1-U.
//
// The heuristic:
//
//   - the GTPv1-U header is 8 bytes, so the UDP payload must be longer
//     than 8 bytes;
//   - the top nibble of the first payload byte must be 0x3 (version 1,
//     protocol type 1);
//   - the GTP message length must equal the UDP payload length minus
//     the 8-byte GTP header.
//
// The destination port is deliberately not checked (GTP-U may ride on
// a non-standard port), and neither is the T-PDU message type (there
// are other legitimate message types).
func (d *UDP) IsGTPv1U() bool {
	dataLen := d.DataLen()
	if dataLen <= 8 {
		return false
	}
	if d.view.Size() < udpHeaderLen+4 {
		return false
	}
	if d.view.Uint8(udpHeaderLen)&0xF0 != 0x30 {
		return false
	}
	return int(d.view.Uint16(udpHeaderLen+2))+8 == dataLen
}
