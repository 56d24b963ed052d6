// Package dump renders decoded packets in a human-readable form.
package dump

import (
	"fmt"
	"strings"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/netbuf"
)

// Eth renders an Ethernet frame header.
func Eth(d *decode.EthFrame) string {
	return fmt.Sprintf("eth %s > %s type 0x%04x len %d",
		d.SrcMAC(), d.DstMAC(), d.EtherType(), d.Frame().Size())
}

// IPv4 renders an IPv4 header.
func IPv4(d *decode.IPv4) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ipv4 %s > %s proto %d ttl %d len %d id 0x%04x",
		d.SrcAddr(), d.DstAddr(), d.Protocol(), d.TTL(), d.TotalLen(), d.Identification())
	if d.IsFragment() {
		fmt.Fprintf(&b, " frag off %d mf %t", d.FragmentOffsetBytes(), d.MoreFragments())
	}
	return b.String()
}

// UDP renders a UDP header.
func UDP(d *decode.UDP) string {
	return fmt.Sprintf("udp %d > %d len %d", d.SrcPort(), d.DstPort(), d.TotalLen())
}

// TCP renders a TCP header.
func TCP(d *decode.TCP) string {
	flags := ""
	for _, f := range []struct {
		bit  int
		name string
	}{
		{decode.TCPFlagSYN, "S"}, {decode.TCPFlagACK, "."},
		{decode.TCPFlagFIN, "F"}, {decode.TCPFlagRST, "R"},
		{decode.TCPFlagPSH, "P"}, {decode.TCPFlagURG, "U"},
	} {
		if d.Flag(f.bit) {
			flags += f.name
		}
	}
	return fmt.Sprintf("tcp %d > %d [%s] seq %d ack %d",
		d.SrcPort(), d.DstPort(), flags, d.SeqNum(), d.AckNum())
}

// SCTP renders an SCTP header and its chunk types.
func SCTP(d *decode.SCTP) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sctp %d > %d vtag 0x%08x chunks", d.SrcPort(), d.DstPort(), d.VerificationTag())
	for _, c := range d.Chunks() {
		fmt.Fprintf(&b, " %d(%dB)", c.Type(), c.TotalLen())
	}
	return b.String()
}

// GTPv1U renders a GTPv1-U header.
func GTPv1U(d *decode.GTPv1U) string {
	return fmt.Sprintf("gtpv1u teid 0x%08x type 0x%02x len %d ext %d",
		d.TEID(), d.MessageType(), d.MessageLen(), len(d.ExtensionHeaders()))
}

// Frame walks a whole Ethernet frame and renders one line per decoded
// layer. Layers that fail to decode stop the walk with a note.
func Frame(frame netbuf.View) string {
	var lines []string

	eth, err := decode.NewEthFrame(frame)
	if err != nil {
		return fmt.Sprintf("undecodable frame: %v", err)
	}
	lines = append(lines, Eth(eth))

	if eth.IsIPv4() {
		lines = append(lines, ipv4Lines(eth.Data())...)
	}
	return strings.Join(lines, "\n")
}

// Packet walks an IPv4 packet and renders one line per decoded layer.
func Packet(packet netbuf.View) string {
	return strings.Join(ipv4Lines(packet), "\n")
}

func ipv4Lines(data netbuf.View) []string {
	var lines []string

	ipv4, err := decode.NewIPv4(data)
	if err != nil {
		return []string{fmt.Sprintf("  undecodable ipv4: %v", err)}
	}
	lines = append(lines, "  "+IPv4(ipv4))

	payload, err := ipv4.Data()
	if err != nil {
		return append(lines, fmt.Sprintf("    truncated payload: %v", err))
	}

	switch ipv4.Protocol() {
	case core.ProtocolUDP:
		udp, err := decode.NewUDP(payload)
		if err != nil {
			return append(lines, fmt.Sprintf("    undecodable udp: %v", err))
		}
		lines = append(lines, "    "+UDP(udp))
		if udp.IsGTPv1U() {
			if data, err := udp.Data(); err == nil {
				if gtp, err := decode.NewGTPv1U(data); err == nil {
					lines = append(lines, "      "+GTPv1U(gtp))
					if gtp.IsIPv4PDU() {
						lines = append(lines, ipv4Lines(gtp.Data())...)
					}
				}
			}
		}
	case core.ProtocolTCP:
		if tcp, err := decode.NewTCP(payload); err == nil {
			lines = append(lines, "    "+TCP(tcp))
		}
	case core.ProtocolSCTP:
		if sctp, err := decode.NewSCTP(payload); err == nil {
			lines = append(lines, "    "+SCTP(sctp))
		}
	}
	return lines
}
