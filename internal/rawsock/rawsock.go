//go:build linux

// Package rawsock provides AF_PACKET access to network interfaces:
// a plain raw socket for send/receive, and a TPACKET ring source for
// high-rate capture. Linux only.
package rawsock

import (
	"github.com/vishvananda/netlink"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

func htons(v uint16) uint16 { return v<<8 | v>>8 }

// IfIndexByName resolves an interface name to its index.
func IfIndexByName(name string) (int, error) {
	const where = "rawsock.IfIndexByName"
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, &core.IOError{Where: where, Cause: err}
	}
	return link.Attrs().Index, nil
}

// Socket is a bound AF_PACKET raw socket.
type Socket struct {
	fd      int
	ifIndex int
}

// Open creates a raw socket bound to the interface with the given
// index, optionally enabling promiscuous mode.
func Open(ifIndex int, promiscuous bool) (*Socket, error) {
	const where = "rawsock.Open"

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, &core.IOError{Where: where, Cause: err}
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifIndex,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, &core.IOError{Where: where, Cause: err}
	}

	if promiscuous {
		mreq := unix.PacketMreq{
			Ifindex: int32(ifIndex),
			Type:    unix.PACKET_MR_PROMISC,
		}
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			unix.Close(fd)
			return nil, &core.IOError{Where: where, Cause: err}
		}
	}

	return &Socket{fd: fd, ifIndex: ifIndex}, nil
}

// SetFilter attaches a classic BPF program to the socket.
func (s *Socket) SetFilter(prog []bpf.RawInstruction) error {
	const where = "rawsock.Socket.SetFilter"
	if len(prog) == 0 {
		return nil
	}
	filters := make([]unix.SockFilter, len(prog))
	for i, ins := range prog {
		filters[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	fprog := unix.SockFprog{Len: uint16(len(filters)), Filter: &filters[0]}
	if err := unix.SetsockoptSockFprog(s.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		return &core.IOError{Where: where, Cause: err}
	}
	return nil
}

// Receive reads one frame into buf and returns a view over it.
func (s *Socket) Receive(buf netbuf.WritableView) (netbuf.View, error) {
	const where = "rawsock.Socket.Receive"
	n, _, err := unix.Recvfrom(s.fd, buf.WritableBytes(), 0)
	if err != nil {
		return netbuf.View{}, &core.IOError{Where: where, Cause: err}
	}
	return buf.SubLen(0, n)
}

// Send writes one frame out of the interface. A short write surfaces
// as an IOError.
func (s *Socket) Send(frame netbuf.View) error {
	const where = "rawsock.Socket.Send"
	n, err := unix.Write(s.fd, frame.Bytes())
	if err != nil {
		return &core.IOError{Where: where, Cause: err}
	}
	if n != frame.Size() {
		return &core.IOError{
			Where: where,
			Cause: &core.TooShortError{Needed: frame.Size(), Available: n, Where: where},
		}
	}
	return nil
}

// MTU returns the interface MTU.
func (s *Socket) MTU() (int, error) {
	const where = "rawsock.Socket.MTU"
	link, err := netlink.LinkByIndex(s.ifIndex)
	if err != nil {
		return 0, &core.IOError{Where: where, Cause: err}
	}
	return link.Attrs().MTU, nil
}

// SetMTU changes the interface MTU.
func (s *Socket) SetMTU(mtu int) error {
	const where = "rawsock.Socket.SetMTU"
	link, err := netlink.LinkByIndex(s.ifIndex)
	if err != nil {
		return &core.IOError{Where: where, Cause: err}
	}
	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return &core.IOError{Where: where, Cause: err}
	}
	return nil
}

// Close releases the socket.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
