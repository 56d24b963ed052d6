//go:build linux

package rawsock

import (
	"golang.org/x/net/bpf"

	"github.com/epcnet/upf/internal/core"
)

// MobileTrafficFilter assembles a classic BPF program accepting the
// traffic a UPF cares about: IPv4 carrying SCTP (S1-AP rides on it),
// or IPv4/UDP to or from the GTPv1-U port. Everything else is cut in
// the kernel before it reaches the ring.
//
// The program assumes plain Ethernet framing (no VLAN tags).
func MobileTrafficFilter(snapLen int) ([]bpf.RawInstruction, error) {
	prog := []bpf.Instruction{
		// EtherType must be IPv4.
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(core.EtherTypeIPv4), SkipTrue: 9},

		// Accept any SCTP.
		bpf.LoadAbsolute{Off: 23, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(core.ProtocolSCTP), SkipTrue: 6},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(core.ProtocolUDP), SkipTrue: 6},

		// UDP: accept when either port is the GTPv1-U port. X holds
		// the IP header length to find the UDP header.
		bpf.LoadMemShift{Off: 14},
		bpf.LoadIndirect{Off: 14, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(core.PortGTPv1U), SkipTrue: 2},
		bpf.LoadIndirect{Off: 16, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(core.PortGTPv1U), SkipTrue: 1},

		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	}

	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, &core.InvalidArgumentError{Where: "rawsock.MobileTrafficFilter", Detail: err.Error()}
	}
	return raw, nil
}
