package s1ap

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/proc"
)

// Processor is a packet processor that additionally decodes S1-AP
// messages found in complete SCTP DATA chunks with the S1-AP payload
// protocol identifier. It claims the inner processor's ChainSCTPData
// hook; everything else in proc.Hooks stays available to the owner.
type Processor struct {
	proc.Processor
	codec Codec

	// S1AP fires once per decoded S1AP-PDU. Returning false stops the
	// descent like any other layer hook.
	S1AP func(*Context) bool

	// decodeErr carries a codec failure out of the hook cascade.
	decodeErr error
}

// NewProcessor creates an S1-AP-aware processor using the given codec.
func NewProcessor(codec Codec) *Processor {
	p := &Processor{codec: codec}
	p.Hooks.ChainSCTPData = p.chainOnDataChunk
	return p
}

// chainOnDataChunk runs the S1-AP extension of the cascade. SCTP
// fragments pass through: we do not reassemble SCTP messages.
func (p *Processor) chainOnDataChunk(ctx *proc.Context) bool {
	chunk := ctx.SCTPData
	if chunk == nil || chunk.IsFragment() || !chunk.IsS1AP() {
		return true
	}

	data, err := chunk.Data()
	if err != nil {
		p.decodeErr = err
		return false
	}
	pdu, err := p.codec.Decode(data.Bytes())
	if err != nil {
		p.decodeErr = err
		return false
	}

	if p.S1AP == nil {
		return true
	}
	return p.S1AP(&Context{Context: ctx, PDU: pdu})
}

// ConsumeEth overrides the inner processor to surface codec errors at
// the packet boundary.
func (p *Processor) ConsumeEth(frame netbuf.View, userData *core.UserData) error {
	p.decodeErr = nil
	if err := p.Processor.ConsumeEth(frame, userData); err != nil {
		return err
	}
	return p.decodeErr
}

// ConsumeIPv4 implements netbuf.IPv4Sink; encapsulated IPv4 traffic
// can be fed directly.
func (p *Processor) ConsumeIPv4(packet netbuf.View, userData *core.UserData) error {
	p.decodeErr = nil
	if err := p.Processor.PushIPv4(packet, userData); err != nil {
		return err
	}
	return p.decodeErr
}
