package router

import (
	"math"
	"net/netip"
	"strconv"
	"strings"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
)

// MatchingRule matches a packet on protocol, destination CIDR and
// destination port. A zero Protocol or DstPort means "any".
//
// Textual form: <protocol>-<address>/<mask>-<port>, where protocol and
// port may be "*". Example: "6-192.168.1.0/24-80".
type MatchingRule struct {
	Protocol uint8
	DstCIDR  netip.Prefix
	DstPort  uint16
}

// ParseMatchingRule parses the textual rule form.
func ParseMatchingRule(s string) (MatchingRule, error) {
	const where = "router.ParseMatchingRule"
	fail := func(detail string) (MatchingRule, error) {
		return MatchingRule{}, &core.InvalidArgumentError{Where: where, Detail: detail}
	}

	s = strings.TrimSpace(s)

	protoStr, rest, ok := strings.Cut(s, "-")
	if !ok {
		return fail("missing protocol number")
	}

	var rule MatchingRule
	if protoStr != "*" {
		p, err := strconv.ParseUint(protoStr, 10, 64)
		if err != nil || p > 255 {
			return fail("invalid protocol number")
		}
		rule.Protocol = uint8(p)
	}

	cidrStr, portStr, ok := cutLast(rest, "-")
	if !ok {
		return fail("missing port number")
	}

	addrStr, maskStr, ok := strings.Cut(cidrStr, "/")
	if !ok {
		return fail("missing CIDR")
	}
	addr, err := netip.ParseAddr(addrStr)
	if err != nil || !addr.Is4() {
		return fail("invalid IPv4 address")
	}
	mask, err := strconv.ParseUint(maskStr, 10, 64)
	if err != nil {
		return fail("invalid CIDR mask")
	}
	if mask > 32 {
		return fail("CIDR mask too large")
	}
	rule.DstCIDR = netip.PrefixFrom(addr, int(mask))

	if portStr != "*" {
		p, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return fail("invalid port number")
		}
		switch {
		case p == 0:
			rule.DstPort = core.PortInvalid
		case p > 65535:
			return fail("invalid port number")
		default:
			rule.DstPort = uint16(p)
		}
	}

	return rule, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// EndPosition makes AddRule append and DelRule drop the last rule.
const EndPosition = math.MaxInt

// RuleMatcher keeps an ordered list of matching rules and tells
// whether any of them matches a given IPv4 packet.
type RuleMatcher struct {
	rules []MatchingRule
}

// Match reports whether any rule matches the packet bound to the
// decoder.
func (m *RuleMatcher) Match(ipv4 *decode.IPv4) bool {
	for _, rule := range m.rules {
		if m.matchRule(ipv4, rule) {
			return true
		}
	}
	return false
}

func (m *RuleMatcher) matchRule(ipv4 *decode.IPv4, rule MatchingRule) bool {
	if rule.Protocol != core.ProtocolNone && rule.Protocol != ipv4.Protocol() {
		return false
	}

	if !rule.DstCIDR.Contains(ipv4.DstAddr()) {
		return false
	}

	// A port rule can only ever match TCP, UDP or SCTP traffic.
	if rule.DstPort != core.PortInvalid {
		packetPort := core.PortInvalid
		payload, err := ipv4.Data()
		if err != nil {
			return false
		}
		switch {
		case ipv4.IsTCP():
			if tcp, err := decode.NewTCP(payload); err == nil {
				packetPort = tcp.DstPort()
			}
		case ipv4.IsUDP():
			if udp, err := decode.NewUDP(payload); err == nil {
				packetPort = udp.DstPort()
			}
		case ipv4.IsSCTP():
			if sctp, err := decode.NewSCTP(payload); err == nil {
				packetPort = sctp.DstPort()
			}
		}
		if rule.DstPort != packetPort {
			return false
		}
	}

	return true
}

// AddRule inserts a rule at the given position (0 = first).
// EndPosition, or any position past the end, appends.
func (m *RuleMatcher) AddRule(rule MatchingRule, position int) {
	if position < 0 || position >= len(m.rules) {
		m.rules = append(m.rules, rule)
		return
	}
	m.rules = append(m.rules, MatchingRule{})
	copy(m.rules[position+1:], m.rules[position:])
	m.rules[position] = rule
}

// DelRule removes the rule at the given position. EndPosition, or any
// position past the end, removes the last rule.
func (m *RuleMatcher) DelRule(position int) {
	if len(m.rules) == 0 {
		return
	}
	if position < 0 || position >= len(m.rules) {
		m.rules = m.rules[:len(m.rules)-1]
		return
	}
	m.rules = append(m.rules[:position], m.rules[position+1:]...)
}

// ClearRules removes every rule.
func (m *RuleMatcher) ClearRules() { m.rules = nil }

// Rules returns the current rule list in match order.
func (m *RuleMatcher) Rules() []MatchingRule { return m.rules }
