package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	tcpMinHeaderLen = 20

	tcpSrcPortOffset            = 0
	tcpDstPortOffset            = 2
	tcpSeqNumOffset             = 4
	tcpAckNumOffset             = 8
	tcpDataOffsetAndFlagsOffset = 12
	tcpWindowOffset             = 14
	tcpChecksumOffset           = 16
	tcpUrgentPointerOffset      = 18
)

// TCP flag bit positions inside the 16-bit data-offset-and-flags word.
const (
	TCPFlagFIN = 0
	TCPFlagSYN = 1
	TCPFlagRST = 2
	TCPFlagPSH = 3
	TCPFlagACK = 4
	TCPFlagURG = 5
	TCPFlagECE = 6
	TCPFlagCWR = 7
	TCPFlagNS  = 8
)

// TCP decodes a TCP segment.
type TCP struct {
	view netbuf.View
}

// NewTCP attaches to the given view.
func NewTCP(view netbuf.View) (*TCP, error) {
	const where = "decode.NewTCP"
	if view.Size() < tcpMinHeaderLen {
		return nil, &core.TooShortError{Needed: tcpMinHeaderLen, Available: view.Size(), Where: where}
	}
	return &TCP{view: view}, nil
}

// SrcPort returns the source port.
func (d *TCP) SrcPort() uint16 { return d.view.Uint16(tcpSrcPortOffset) }

// DstPort returns the destination port.
func (d *TCP) DstPort() uint16 { return d.view.Uint16(tcpDstPortOffset) }

// SeqNum returns the sequence number.
func (d *TCP) SeqNum() uint32 { return d.view.Uint32(tcpSeqNumOffset) }

// AckNum returns the acknowledgment number.
func (d *TCP) AckNum() uint32 { return d.view.Uint32(tcpAckNumOffset) }

// DataOffsetBytes returns the header length in bytes, including
// options.
func (d *TCP) DataOffsetBytes() int {
	return int(d.view.Uint16(tcpDataOffsetAndFlagsOffset)>>12&0x0F) * 4
}

// Flag reports the flag at the given bit position (TCPFlagFIN..TCPFlagNS).
func (d *TCP) Flag(bit int) bool {
	return d.view.Uint16(tcpDataOffsetAndFlagsOffset)>>bit&1 != 0
}

// Window returns the receive window field.
func (d *TCP) Window() uint16 { return d.view.Uint16(tcpWindowOffset) }

// Checksum returns the checksum field.
func (d *TCP) Checksum() uint16 { return d.view.Uint16(tcpChecksumOffset) }

// UrgentPointer returns the urgent pointer field.
func (d *TCP) UrgentPointer() uint16 { return d.view.Uint16(tcpUrgentPointerOffset) }

// DataLen returns the payload length.
func (d *TCP) DataLen() int { return d.view.Size() - d.DataOffsetBytes() }

// Data returns a view over the payload.
func (d *TCP) Data() (netbuf.View, error) {
	return d.view.Sub(d.DataOffsetBytes())
}
