// Package router implements the stateful UPF core: it watches the
// S1-AP traffic between eNodeBs and EPCs to learn GTPv1-U tunnel
// endpoints per UE, keeps the UE map up to date, and drives the
// GTPv1-U encapsulation and decapsulation decisions.
package router

import (
	"net/netip"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/proc"
	"github.com/epcnet/upf/internal/s1ap"
)

// SetupKey pairs an InitialContextSetupResponse with its Request.
type SetupKey struct {
	MMEUES1APID uint32
	ENBUES1APID uint32
	ERABID      uint8
}

// setupData is what a Request leaves behind until its Response closes
// the pair: the EPC-side endpoint plus the UE address.
type setupData struct {
	tunnel core.TunnelInfo
	ueAddr netip.Addr
}

// UEMapEntry is the pair offered to the upsert hook right before it
// lands in the UE map. The hook may rewrite both fields.
type UEMapEntry struct {
	UEAddr netip.Addr
	Tunnel core.TunnelInfo
}

// Router consumes the IPv4 traffic between eNodeBs and EPCs. S1-AP
// traffic is detected and processed to keep the UE map up to date;
// everything else is exposed through the hooks so callers decide how
// to forward, encapsulate, or drop it.
//
// Entries never leave the UE map on their own: S1-AP context release
// and handover are not handled, so teardown either goes unnoticed or
// is applied externally through UEMap.
type Router struct {
	processor *s1ap.Processor
	setupMap  map[SetupKey]*setupData
	ueMap     map[netip.Addr]core.TunnelInfo

	// OnS1APRelevantTraffic fires once per Initial Context Setup
	// message seen, before its items are processed.
	OnS1APRelevantTraffic func()

	// BeforeUEMapUpsert may veto or rewrite an entry about to be
	// inserted or updated. Nil means "insert as-is".
	BeforeUEMapUpsert func(*UEMapEntry) bool
}

// New creates a Router decoding S1-AP through the given codec.
func New(codec s1ap.Codec) *Router {
	r := &Router{
		processor: s1ap.NewProcessor(codec),
		setupMap:  make(map[SetupKey]*setupData),
		ueMap:     make(map[netip.Addr]core.TunnelInfo),
	}

	// SCTP between eNodeBs and EPCs (S1-AP or not) must be forwarded
	// as-is, so it never enters the IPv4 post-processing phase where
	// unknown traffic gets dropped.
	r.processor.Hooks.SCTP = func(ctx *proc.Context) bool {
		ctx.PostProcessIPv4 = false
		return true
	}
	r.processor.Hooks.FinalOnIPv4 = true
	r.processor.S1AP = r.processS1AP
	return r
}

// ConsumeIPv4 implements netbuf.IPv4Sink: feed the router the IPv4
// traffic between the EPC and the eNodeBs.
func (r *Router) ConsumeIPv4(packet netbuf.View, userData *core.UserData) error {
	return r.processor.ConsumeIPv4(packet, userData)
}

// OnGTPv1UIPv4 sets the hook fired on GTPv1-U packets carrying IPv4.
func (r *Router) OnGTPv1UIPv4(f proc.HookFunc) { r.processor.Hooks.GTPv1UIPv4 = f }

// OnIPv4PostProcess sets the hook fired in the IPv4 post-processing
// phase, meant to catch plain IPv4 traffic that should be either
// encapsulated or dropped. S1-AP and other SCTP traffic never reaches
// it (see New).
func (r *Router) OnIPv4PostProcess(f proc.HookFunc) { r.processor.Hooks.PostIPv4 = f }

// OnNonIPv4 sets the hook fired on non-IPv4 frames.
func (r *Router) OnNonIPv4(f proc.HookFunc) { r.processor.Hooks.NonIPv4 = f }

// OnFinalProcess sets the hook fired on traffic that survived the
// whole cascade and should be forwarded as-is.
func (r *Router) OnFinalProcess(f func(*proc.Context)) { r.processor.Hooks.Final = f }

// UEMap returns the live UE map: UE IPv4 address to tunnel info.
// Callers may mutate it; the router only ever upserts through the
// matched Request/Response path.
func (r *Router) UEMap() map[netip.Addr]core.TunnelInfo { return r.ueMap }

// PendingSetups returns the number of Requests still waiting for
// their Response.
func (r *Router) PendingSetups() int { return len(r.setupMap) }

// IsIPv4TrafficOfKnownUE decodes the view as IPv4 and reports whether
// its source or destination is a known UE.
func (r *Router) IsIPv4TrafficOfKnownUE(packet netbuf.View) (bool, error) {
	ipv4, err := decode.NewIPv4(packet)
	if err != nil {
		return false, err
	}
	if _, ok := r.ueMap[ipv4.SrcAddr()]; ok {
		return true, nil
	}
	_, ok := r.ueMap[ipv4.DstAddr()]
	return ok, nil
}

// LookupUE returns the tunnel info of a known UE address.
func (r *Router) LookupUE(addr netip.Addr) (core.TunnelInfo, bool) {
	t, ok := r.ueMap[addr]
	return t, ok
}

func (r *Router) processS1AP(ctx *s1ap.Context) bool {
	if len(ctx.PDU.Requests) > 0 {
		r.handleRequests(ctx.PDU.Requests)
		ctx.PostProcessIPv4 = false
	}
	if len(ctx.PDU.Responses) > 0 {
		r.handleResponses(ctx.PDU.Responses)
		ctx.PostProcessIPv4 = false
	}
	return true
}

func (r *Router) handleRequests(reqs []s1ap.SetupRequest) {
	// In practice it is always just one item.
	if r.OnS1APRelevantTraffic != nil {
		r.OnS1APRelevantTraffic()
	}

	for _, req := range reqs {
		key := SetupKey{
			MMEUES1APID: req.MMEUES1APID,
			ENBUES1APID: req.ENBUES1APID,
			ERABID:      req.ERABID,
		}
		data := r.setupMap[key]
		if data == nil {
			data = &setupData{}
			r.setupMap[key] = data
		}

		// Requests go from the EPC to the eNodeB: the transport layer
		// address is the EPC endpoint.
		data.tunnel.EPC.Addr = req.TransportAddr
		data.tunnel.EPC.TEID = req.TEID
		data.tunnel.EPC.Port = core.PortUnspecified
		data.ueAddr = req.UEAddr
	}
}

func (r *Router) handleResponses(resps []s1ap.SetupResponse) {
	if r.OnS1APRelevantTraffic != nil {
		r.OnS1APRelevantTraffic()
	}

	for _, resp := range resps {
		key := SetupKey{
			MMEUES1APID: resp.MMEUES1APID,
			ENBUES1APID: resp.ENBUES1APID,
			ERABID:      resp.ERABID,
		}
		data, ok := r.setupMap[key]
		if !ok {
			// A response without a request. Ignore it.
			continue
		}

		// Responses go from the eNodeB to the EPC: fill in the eNodeB
		// endpoint and close the pair.
		data.tunnel.ENB.Addr = resp.TransportAddr
		data.tunnel.ENB.TEID = resp.TEID
		data.tunnel.ENB.Port = core.PortUnspecified

		entry := UEMapEntry{UEAddr: data.ueAddr, Tunnel: data.tunnel}
		delete(r.setupMap, key)

		doIt := true
		if r.BeforeUEMapUpsert != nil {
			doIt = r.BeforeUEMapUpsert(&entry)
		}
		if doIt {
			r.ueMap[entry.UEAddr] = entry.Tunnel
		}
	}
}
