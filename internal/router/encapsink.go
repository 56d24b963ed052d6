package router

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/encap"
	"github.com/epcnet/upf/internal/netbuf"
)

// Direction tags written into UserData.Int by EncapSink.
const (
	DirectionToEPC     = 0
	DirectionToENB     = 1
	DirectionUnknownUE = 3
)

// EncapSink is an IPv4 sink that encapsulates each packet in GTPv1-U
// aimed at the proper tunnel endpoint, using the router's UE map, and
// hands the result to a downstream IPv4 sink.
//
// Traffic to or from an unknown UE is silently dropped, unless an
// OnUnknownUE hook is installed: then the hook sees the packet, and if
// it returns true an empty view goes downstream so a later stage can
// still observe the event.
type EncapSink struct {
	dst     netbuf.IPv4Sink
	router  *Router
	idents  *encap.IdentificationSource
	builder *encap.IPv4Builder

	// OnUnknownUE sees traffic of unknown UEs. Returning true sends an
	// empty view downstream.
	OnUnknownUE func(packet netbuf.View) bool
}

// NewEncapSink creates the sink, composing packets into buf.
func NewEncapSink(dst netbuf.IPv4Sink, buf netbuf.WritableView, router *Router, idents *encap.IdentificationSource) (*EncapSink, error) {
	builder, err := encap.NewIPv4Builder(buf)
	if err != nil {
		return nil, err
	}
	return &EncapSink{dst: dst, router: router, idents: idents, builder: builder}, nil
}

// EnableUDPChecksum enables or disables computing the UDP checksum on
// outgoing packets (default enabled).
func (s *EncapSink) EnableUDPChecksum(enable bool) { s.builder.EnableUDPChecksum(enable) }

// ConsumeIPv4 implements netbuf.IPv4Sink.
func (s *EncapSink) ConsumeIPv4(packet netbuf.View, userData *core.UserData) error {
	ipv4, err := decode.NewIPv4(packet)
	if err != nil {
		return err
	}

	// Way more traffic goes to a UE than comes from one, so check the
	// destination first.
	if tunnel, ok := s.router.LookupUE(ipv4.DstAddr()); ok {
		// To a UE: from the EPC towards its eNodeB.
		s.builder.Init().
			SetSrcAddr(tunnel.EPC.Addr).
			SetDstAddr(tunnel.ENB.Addr).
			SetTEID(tunnel.ENB.TEID)
		if userData != nil {
			userData.Int = DirectionToENB
		}
	} else if tunnel, ok := s.router.LookupUE(ipv4.SrcAddr()); ok {
		// From a UE: from its eNodeB towards the EPC.
		s.builder.Init().
			SetSrcAddr(tunnel.ENB.Addr).
			SetDstAddr(tunnel.EPC.Addr).
			SetTEID(tunnel.EPC.TEID)
		if userData != nil {
			userData.Int = DirectionToEPC
		}
	} else {
		if s.OnUnknownUE != nil && s.OnUnknownUE(packet) {
			if userData != nil {
				userData.Int = DirectionUnknownUE
			}
			return s.dst.ConsumeIPv4(netbuf.View{}, userData)
		}
		return nil
	}

	s.builder.SetIdentification(s.idents.Next())
	if err := s.builder.SetPayload(packet); err != nil {
		return err
	}
	s.builder.ComputeChecksums()

	return s.dst.ConsumeIPv4(s.builder.Packet(), userData)
}
