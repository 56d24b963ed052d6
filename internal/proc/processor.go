// Package proc implements the layered packet-processing pipeline: a
// dispatcher that drives the protocol decoders top-down over a frame
// and fires per-layer hooks from an explicit handler table.
package proc

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/netbuf"
)

// Context is handed to every hook. Decoder references are populated
// only for the layers that have actually fired, and are cleared again
// when the layer is left.
type Context struct {
	Eth       *decode.EthFrame
	IPv4      *decode.IPv4
	UDP       *decode.UDP
	TCP       *decode.TCP
	SCTP      *decode.SCTP
	SCTPChunk *decode.SCTPGenericChunk
	SCTPData  *decode.SCTPDataChunk
	GTPv1U    *decode.GTPv1U

	// PostProcessIPv4 gates the IPv4 post-processing hook. Any hook
	// may clear it to veto post-processing for the current packet.
	PostProcessIPv4 bool

	// UserData is carried through from the sink interface; the
	// pipeline gives it no meaning.
	UserData *core.UserData
}

// HookFunc is a per-layer callback. Returning false aborts the descent
// below the current layer; siblings and parents still run what they
// had scheduled.
type HookFunc func(*Context) bool

// Hooks is the handler table of a Processor. Nil entries mean
// "continue". The Chain* entries are reserved for wrapping layers
// (like the S1-AP processor) that must extend the cascade without the
// owner of the plain hooks having to remember to call them.
type Hooks struct {
	Eth       HookFunc
	ChainEth  HookFunc
	IPv4      HookFunc
	ChainIPv4 HookFunc

	UDP       HookFunc
	ChainUDP  HookFunc
	TCP       HookFunc
	ChainTCP  HookFunc
	SCTP      HookFunc
	ChainSCTP HookFunc

	SCTPChunk      HookFunc
	ChainSCTPChunk HookFunc
	SCTPData       HookFunc
	ChainSCTPData  HookFunc

	GTPv1U      HookFunc
	ChainGTPv1U HookFunc

	// GTPv1UIPv4 fires on GTPv1-U packets whose message type is T-PDU.
	GTPv1UIPv4 HookFunc

	// NonIPv4 fires on Ethernet frames not carrying IPv4.
	NonIPv4 HookFunc

	// PostIPv4 fires after the IPv4 subtree has finished, if still
	// enabled via Context.PostProcessIPv4.
	PostIPv4 HookFunc

	// Final fires once at the very end, when no traversed hook has
	// stopped processing.
	Final func(*Context)

	// FinalOnIPv4 anchors final processing at the IPv4 level instead
	// of the Ethernet level, so that IPv4 packets injected directly
	// also fire it.
	FinalOnIPv4 bool
}

func call(f HookFunc, ctx *Context) bool {
	if f == nil {
		return true
	}
	return f(ctx)
}

// Processor drives the decoder cascade over Ethernet frames or
// injected IPv4 packets. It is single-threaded: hooks run on the
// calling goroutine and must return before the consume call does.
type Processor struct {
	Hooks Hooks
}

// ConsumeEth implements netbuf.EthSink: decode the frame and run the
// cascade. Decode errors surface to the caller, which is expected to
// treat them per packet.
func (p *Processor) ConsumeEth(frame netbuf.View, userData *core.UserData) error {
	ctx := Context{PostProcessIPv4: true, UserData: userData}

	eth, err := decode.NewEthFrame(frame)
	if err != nil {
		return err
	}
	ctx.Eth = eth

	if !call(p.Hooks.Eth, &ctx) || !call(p.Hooks.ChainEth, &ctx) {
		return nil
	}

	if eth.IsIPv4() {
		cont, err := p.processIPv4(eth.Data(), &ctx)
		if err != nil {
			return err
		}
		if cont {
			p.final(&ctx)
		}
		return nil
	}

	if call(p.Hooks.NonIPv4, &ctx) {
		p.final(&ctx)
	}
	return nil
}

// PushIPv4 injects an IPv4 packet directly, entering the pipeline at
// the IPv4 layer with no Ethernet decoder in the context.
func (p *Processor) PushIPv4(packet netbuf.View, userData *core.UserData) error {
	ctx := Context{PostProcessIPv4: true, UserData: userData}

	cont, err := p.processIPv4(packet, &ctx)
	if err != nil {
		return err
	}
	if cont && p.Hooks.FinalOnIPv4 {
		p.final(&ctx)
	}
	return nil
}

// ConsumeIPv4 implements netbuf.IPv4Sink as an alias for PushIPv4.
func (p *Processor) ConsumeIPv4(packet netbuf.View, userData *core.UserData) error {
	return p.PushIPv4(packet, userData)
}

func (p *Processor) final(ctx *Context) {
	if p.Hooks.Final != nil {
		p.Hooks.Final(ctx)
	}
}

func (p *Processor) processIPv4(data netbuf.View, ctx *Context) (bool, error) {
	ipv4, err := decode.NewIPv4(data)
	if err != nil {
		return false, err
	}
	ctx.IPv4 = ipv4
	defer func() { ctx.IPv4 = nil }()

	if !call(p.Hooks.IPv4, ctx) || !call(p.Hooks.ChainIPv4, ctx) {
		return false, nil
	}

	payload, err := ipv4.Data()
	if err != nil {
		return false, err
	}

	var cont bool
	switch {
	case ipv4.IsUDP():
		cont, err = p.processUDP(payload, ctx)
	case ipv4.IsSCTP():
		cont, err = p.processSCTP(payload, ctx)
	case ipv4.IsTCP():
		cont, err = p.processTCP(payload, ctx)
	default:
		cont = true
	}
	if err != nil {
		return false, err
	}

	if cont && ctx.PostProcessIPv4 {
		cont = call(p.Hooks.PostIPv4, ctx)
	}
	return cont, nil
}

func (p *Processor) processUDP(data netbuf.View, ctx *Context) (bool, error) {
	udp, err := decode.NewUDP(data)
	if err != nil {
		return false, err
	}
	ctx.UDP = udp
	defer func() { ctx.UDP = nil }()

	if !call(p.Hooks.UDP, ctx) || !call(p.Hooks.ChainUDP, ctx) {
		return false, nil
	}

	if !udp.IsGTPv1U() {
		return true, nil
	}

	payload, err := udp.Data()
	if err != nil {
		return false, err
	}
	return p.processGTPv1U(payload, ctx)
}

func (p *Processor) processGTPv1U(data netbuf.View, ctx *Context) (bool, error) {
	gtp, err := decode.NewGTPv1U(data)
	if err != nil {
		return false, err
	}
	ctx.GTPv1U = gtp
	defer func() { ctx.GTPv1U = nil }()

	if !call(p.Hooks.GTPv1U, ctx) || !call(p.Hooks.ChainGTPv1U, ctx) {
		return false, nil
	}

	if gtp.IsIPv4PDU() {
		return call(p.Hooks.GTPv1UIPv4, ctx), nil
	}
	return true, nil
}

func (p *Processor) processSCTP(data netbuf.View, ctx *Context) (bool, error) {
	sctp, err := decode.NewSCTP(data)
	if err != nil {
		return false, err
	}
	ctx.SCTP = sctp
	defer func() { ctx.SCTP = nil }()

	if !call(p.Hooks.SCTP, ctx) || !call(p.Hooks.ChainSCTP, ctx) {
		return false, nil
	}

	cont := false
	chunks := sctp.Chunks()
	for i := range chunks {
		chunkCont, err := p.processChunk(&chunks[i], ctx)
		if err != nil {
			return false, err
		}
		if chunkCont {
			cont = true
		}
	}
	return cont, nil
}

func (p *Processor) processChunk(chunk *decode.SCTPGenericChunk, ctx *Context) (bool, error) {
	ctx.SCTPChunk = chunk
	defer func() { ctx.SCTPChunk = nil }()

	if !call(p.Hooks.SCTPChunk, ctx) || !call(p.Hooks.ChainSCTPChunk, ctx) {
		return false, nil
	}

	if !chunk.IsDataChunk() {
		return true, nil
	}

	dataChunk, err := decode.NewSCTPDataChunk(chunk.Data())
	if err != nil {
		return false, err
	}
	ctx.SCTPData = dataChunk
	defer func() { ctx.SCTPData = nil }()

	return call(p.Hooks.SCTPData, ctx) && call(p.Hooks.ChainSCTPData, ctx), nil
}

func (p *Processor) processTCP(data netbuf.View, ctx *Context) (bool, error) {
	tcp, err := decode.NewTCP(data)
	if err != nil {
		return false, err
	}
	ctx.TCP = tcp
	defer func() { ctx.TCP = nil }()

	return call(p.Hooks.TCP, ctx) && call(p.Hooks.ChainTCP, ctx), nil
}
