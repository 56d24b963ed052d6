package encap

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

// IPv4EncapSink is an IPv4 sink that wraps each packet in a plain
// Ethernet frame (EtherType 0x0800, configurable fake MAC addresses)
// and hands it to an Ethernet sink.
type IPv4EncapSink struct {
	dst    netbuf.EthSink
	buf    netbuf.WritableView
	srcMAC core.MACAddress
	dstMAC core.MACAddress
}

// NewIPv4EncapSink creates the sink composing frames into buf.
func NewIPv4EncapSink(dst netbuf.EthSink, buf netbuf.WritableView) (*IPv4EncapSink, error) {
	const where = "encap.NewIPv4EncapSink"
	if buf.Size() < ethHeaderLen {
		return nil, &core.TooShortError{Needed: ethHeaderLen, Available: buf.Size(), Where: where}
	}
	return &IPv4EncapSink{dst: dst, buf: buf}, nil
}

// SetSrcMAC sets the fake source MAC (default all-zeros).
func (s *IPv4EncapSink) SetSrcMAC(mac core.MACAddress) { s.srcMAC = mac }

// SetDstMAC sets the fake destination MAC (default all-zeros).
func (s *IPv4EncapSink) SetDstMAC(mac core.MACAddress) { s.dstMAC = mac }

// ConsumeIPv4 implements netbuf.IPv4Sink. Empty packets pass through
// as empty Ethernet frames.
func (s *IPv4EncapSink) ConsumeIPv4(packet netbuf.View, userData *core.UserData) error {
	const where = "encap.IPv4EncapSink.ConsumeIPv4"

	if packet.Empty() {
		return s.dst.ConsumeEth(netbuf.View{}, userData)
	}

	room := s.buf.Size() - ethHeaderLen
	if packet.Size() > room {
		return &core.CapacityExceededError{Needed: packet.Size(), Available: room, Where: where}
	}

	s.buf.SetMAC(0, s.dstMAC)
	s.buf.SetMAC(6, s.srcMAC)
	s.buf.SetUint16(12, core.EtherTypeIPv4)
	copy(s.buf.WritableBytes()[ethHeaderLen:], packet.Bytes())

	frame, err := s.buf.SubLen(0, ethHeaderLen+packet.Size())
	if err != nil {
		return err
	}
	return s.dst.ConsumeEth(frame, userData)
}
