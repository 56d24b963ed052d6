// Package decode implements the per-layer protocol decoders. Every
// decoder attaches to a netbuf.View, validates its header on
// construction, and afterwards serves accessors that cannot fail.
package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	ethMinFrameLen = 14

	ethDstMACOffset  = 0
	ethSrcMACOffset  = 6
	ethTagWalkOffset = 12
)

// EthFrame decodes an Ethernet frame, walking any number of 802.1Q /
// 802.1ad tags to find the actual EtherType.
type EthFrame struct {
	view       netbuf.View
	etherType  uint16
	dataOffset int
}

// NewEthFrame attaches to the given view.
func NewEthFrame(view netbuf.View) (*EthFrame, error) {
	const where = "decode.NewEthFrame"
	if view.Size() < ethMinFrameLen {
		return nil, &core.TooShortError{Needed: ethMinFrameLen, Available: view.Size(), Where: where}
	}

	// Skip 802.1Q/802.1ad tags (QinQ may nest them), 4 bytes each,
	// until a plain EtherType shows up.
	offset := ethTagWalkOffset
	for {
		if offset+2 > view.Size() {
			return nil, &core.MalformedError{Where: where, Detail: "unresolved EtherType chain"}
		}
		et := view.Uint16(offset)
		if et != core.EtherTypeVLAN && et != core.EtherTypeQinQ {
			return &EthFrame{view: view, etherType: et, dataOffset: offset + 2}, nil
		}
		offset += 4
	}
}

// SrcMAC returns the source MAC address.
func (d *EthFrame) SrcMAC() core.MACAddress { return d.view.MAC(ethSrcMACOffset) }

// DstMAC returns the destination MAC address.
func (d *EthFrame) DstMAC() core.MACAddress { return d.view.MAC(ethDstMACOffset) }

// EtherType returns the actual EtherType, after any VLAN tags.
func (d *EthFrame) EtherType() uint16 { return d.etherType }

// IsIPv4 reports whether the frame carries IPv4.
func (d *EthFrame) IsIPv4() bool { return d.etherType == core.EtherTypeIPv4 }

// Frame returns the original view.
func (d *EthFrame) Frame() netbuf.View { return d.view }

// DataOffset returns the offset of the payload within the frame.
func (d *EthFrame) DataOffset() int { return d.dataOffset }

// DataLen returns the payload length.
func (d *EthFrame) DataLen() int { return d.view.Size() - d.dataOffset }

// Data returns a view over the payload.
func (d *EthFrame) Data() netbuf.View {
	sub, _ := d.view.Sub(d.dataOffset)
	return sub
}
