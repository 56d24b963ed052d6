package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	sctpCommonHeaderLen = 12

	sctpSrcPortOffset         = 0
	sctpDstPortOffset         = 2
	sctpVerificationTagOffset = 4
	sctpChecksumOffset        = 8

	sctpChunkTypeOffset   = 0
	sctpChunkFlagsOffset  = 1
	sctpChunkLengthOffset = 2

	sctpDataChunkHeaderLen = 16

	sctpDataTSNOffset       = 4
	sctpDataStreamIDOffset  = 8
	sctpDataStreamSeqOffset = 10
	sctpDataPPIDOffset      = 12
)

// SCTPGenericChunk decodes one SCTP chunk of any type. Its payload is
// the whole chunk, header included, so specific chunk decoders can
// attach to it.
type SCTPGenericChunk struct {
	view netbuf.View
}

// Type returns the chunk type.
func (d *SCTPGenericChunk) Type() uint8 { return d.view.Uint8(sctpChunkTypeOffset) }

// Flags returns the chunk flags byte.
func (d *SCTPGenericChunk) Flags() uint8 { return d.view.Uint8(sctpChunkFlagsOffset) }

// TotalLen returns the unpadded chunk length, header included.
func (d *SCTPGenericChunk) TotalLen() int { return int(d.view.Uint16(sctpChunkLengthOffset)) }

// IsDataChunk reports whether this is a DATA chunk.
func (d *SCTPGenericChunk) IsDataChunk() bool { return d.Type() == core.SCTPChunkData }

// Data returns the whole chunk, header included.
func (d *SCTPGenericChunk) Data() netbuf.View { return d.view }

// SCTPDataChunk decodes an SCTP DATA chunk.
type SCTPDataChunk struct {
	view netbuf.View
}

// NewSCTPDataChunk attaches to the given view (a whole DATA chunk,
// header included).
func NewSCTPDataChunk(view netbuf.View) (*SCTPDataChunk, error) {
	const where = "decode.NewSCTPDataChunk"
	if view.Size() < sctpDataChunkHeaderLen {
		return nil, &core.TooShortError{Needed: sctpDataChunkHeaderLen, Available: view.Size(), Where: where}
	}
	return &SCTPDataChunk{view: view}, nil
}

// Type returns the chunk type.
func (d *SCTPDataChunk) Type() uint8 { return d.view.Uint8(sctpChunkTypeOffset) }

// TotalLen returns the unpadded chunk length, header included.
func (d *SCTPDataChunk) TotalLen() int { return int(d.view.Uint16(sctpChunkLengthOffset)) }

// FlagI reports the I (immediate SACK) flag.
func (d *SCTPDataChunk) FlagI() bool { return d.view.Uint8(sctpChunkFlagsOffset)>>3&1 != 0 }

// FlagU reports the U (unordered) flag.
func (d *SCTPDataChunk) FlagU() bool { return d.view.Uint8(sctpChunkFlagsOffset)>>2&1 != 0 }

// FlagB reports the B (beginning-of-message) flag.
func (d *SCTPDataChunk) FlagB() bool { return d.view.Uint8(sctpChunkFlagsOffset)>>1&1 != 0 }

// FlagE reports the E (end-of-message) flag.
func (d *SCTPDataChunk) FlagE() bool { return d.view.Uint8(sctpChunkFlagsOffset)&1 != 0 }

// TSN returns the transmission sequence number.
func (d *SCTPDataChunk) TSN() uint32 { return d.view.Uint32(sctpDataTSNOffset) }

// StreamID returns the stream identifier.
func (d *SCTPDataChunk) StreamID() uint16 { return d.view.Uint16(sctpDataStreamIDOffset) }

// StreamSeq returns the stream sequence number.
func (d *SCTPDataChunk) StreamSeq() uint16 { return d.view.Uint16(sctpDataStreamSeqOffset) }

// PPID returns the payload protocol identifier.
func (d *SCTPDataChunk) PPID() uint32 { return d.view.Uint32(sctpDataPPIDOffset) }

// DataLen returns the chunk payload length.
func (d *SCTPDataChunk) DataLen() int { return d.TotalLen() - sctpDataChunkHeaderLen }

// Data returns a view over the chunk payload.
func (d *SCTPDataChunk) Data() (netbuf.View, error) {
	return d.view.SubLen(sctpDataChunkHeaderLen, d.DataLen())
}

// IsFragment reports whether this chunk carries a fragment of a larger
// message. A chunk is a complete message only when both B and E are
// set.
func (d *SCTPDataChunk) IsFragment() bool { return !(d.FlagB() && d.FlagE()) }

// IsS1AP reports whether the payload protocol identifier indicates
// S1-AP (see 3GPP TS 36.412 sect. 7).
func (d *SCTPDataChunk) IsS1AP() bool { return d.PPID() == core.PPIDS1AP }

// SCTP decodes a whole SCTP packet and provides access to its chunks.
type SCTP struct {
	view   netbuf.View
	chunks []SCTPGenericChunk
}

// NewSCTP attaches to the given view, walking the chunk sequence.
func NewSCTP(view netbuf.View) (*SCTP, error) {
	const where = "decode.NewSCTP"
	if view.Size() < sctpCommonHeaderLen {
		return nil, &core.TooShortError{Needed: sctpCommonHeaderLen, Available: view.Size(), Where: where}
	}

	d := &SCTP{view: view}
	offset := sctpCommonHeaderLen
	size := view.Size()
	for offset < size {
		chunkLen, err := view.Uint16At(offset + sctpChunkLengthOffset)
		if err != nil {
			return nil, &core.MalformedError{Where: where, Detail: "truncated chunk header"}
		}

		if chunkLen < 4 {
			return nil, &core.MalformedError{Where: where, Detail: "chunk length below minimum"}
		}

		// Chunks are padded to a 4-byte boundary; the length field is
		// the unpadded length.
		padded := int(chunkLen)
		if padded%4 != 0 {
			padded = (padded/4 + 1) * 4
		}
		if offset+padded > size {
			return nil, &core.MalformedError{Where: where, Detail: "chunk length walks past buffer end"}
		}

		chunkView, err := view.SubLen(offset, int(chunkLen))
		if err != nil {
			return nil, &core.MalformedError{Where: where, Detail: "chunk length walks past buffer end"}
		}
		d.chunks = append(d.chunks, SCTPGenericChunk{view: chunkView})

		offset += padded
	}
	return d, nil
}

// SrcPort returns the source port.
func (d *SCTP) SrcPort() uint16 { return d.view.Uint16(sctpSrcPortOffset) }

// DstPort returns the destination port.
func (d *SCTP) DstPort() uint16 { return d.view.Uint16(sctpDstPortOffset) }

// VerificationTag returns the verification tag.
func (d *SCTP) VerificationTag() uint32 { return d.view.Uint32(sctpVerificationTagOffset) }

// Checksum returns the packet checksum field.
func (d *SCTP) Checksum() uint32 { return d.view.Uint32(sctpChecksumOffset) }

// Chunks returns the chunks found in this packet, in wire order.
func (d *SCTP) Chunks() []SCTPGenericChunk { return d.chunks }
