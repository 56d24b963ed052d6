package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	gtpCommonHeaderLen = 8

	gtpMessageTypeOffset   = 1
	gtpMessageLengthOffset = 2
	gtpTEIDOffset          = 4

	// Optional fields, present as a block when any of the E/S/PN flags
	// is set.
	gtpSequenceNumberOffset   = 8
	gtpNPDUNumberOffset       = 10
	gtpNextExtensionOffset    = 11
	gtpEndOfOptionalFieldsOff = 11
)

// GTPv1U decodes a GTPv1-U packet, walking any extension headers to
// find the payload.
type GTPv1U struct {
	view       netbuf.View
	extHeaders []netbuf.View
	dataOffset int
	dataLen    int
}

// NewGTPv1U attaches to the given view.
func NewGTPv1U(view netbuf.View) (*GTPv1U, error) {
	const where = "decode.NewGTPv1U"
	if view.Size() < gtpCommonHeaderLen {
		return nil, &core.TooShortError{Needed: gtpCommonHeaderLen, Available: view.Size(), Where: where}
	}
	if view.Uint8(0)>>4 != 0x03 {
		return nil, &core.MalformedError{Where: where, Detail: "version+protocol-type nibble is not 0x3"}
	}

	d := &GTPv1U{view: view}
	if err := d.walkExtensionHeaders(where); err != nil {
		return nil, err
	}
	return d, nil
}

// walkExtensionHeaders locates the payload past the optional fields
// and any extension headers.
//
// Each stored extension-header view deliberately begins one byte
// before the conventional header start: its first byte is the
// *preceding* header's next-extension-type. That makes every entry a
// self-describing <next-type, length-in-words, body...> record, at the
// cost of not being 4-byte aligned.
func (d *GTPv1U) walkExtensionHeaders(where string) error {
	offset := gtpCommonHeaderLen

	if d.hasOptionalFields() {
		offset = gtpEndOfOptionalFieldsOff

		if d.HasNextExtension() {
			for {
				next, err := d.view.Uint8At(offset)
				if err != nil {
					return &core.MalformedError{Where: where, Detail: "truncated extension-header chain"}
				}
				if next == 0 {
					break
				}
				lenWords, err := d.view.Uint8At(offset + 1)
				if err != nil {
					return &core.MalformedError{Where: where, Detail: "truncated extension header"}
				}
				if lenWords == 0 {
					return &core.MalformedError{Where: where, Detail: "zero-length extension header"}
				}
				ext, err := d.view.SubLen(offset, int(lenWords)*4)
				if err != nil {
					return &core.MalformedError{Where: where, Detail: "extension header walks past buffer end"}
				}
				d.extHeaders = append(d.extHeaders, ext)
				offset += int(lenWords) * 4
			}
		}
	}

	d.dataOffset = offset
	d.dataLen = d.MessageLen() + gtpCommonHeaderLen - offset
	if d.dataLen < 0 || d.dataOffset+d.dataLen > d.view.Size() {
		return &core.TooShortError{
			Needed:    d.dataOffset + d.dataLen,
			Available: d.view.Size(),
			Where:     where,
		}
	}
	return nil
}

// Version returns the GTP version (always 1 after construction).
func (d *GTPv1U) Version() uint8 { return d.view.Uint8(0) >> 5 & 0x07 }

// ProtocolType returns the protocol-type bit (1 = GTP).
func (d *GTPv1U) ProtocolType() uint8 {
	if d.view.Uint8(0)&0x10 != 0 {
		return 1
	}
	return 0
}

// HasNextExtension reports the E flag.
func (d *GTPv1U) HasNextExtension() bool { return d.view.Uint8(0)&0x04 != 0 }

// HasSequenceNumber reports the S flag.
func (d *GTPv1U) HasSequenceNumber() bool { return d.view.Uint8(0)&0x02 != 0 }

// HasNPDUNumber reports the PN flag.
func (d *GTPv1U) HasNPDUNumber() bool { return d.view.Uint8(0)&0x01 != 0 }

// hasOptionalFields reports whether the 4-byte optional block follows
// the common header. The block is present when any of E/S/PN is set,
// but each field in it is only meaningful under its own flag.
func (d *GTPv1U) hasOptionalFields() bool { return d.view.Uint8(0)&0x07 != 0 }

// MessageType returns the message type.
func (d *GTPv1U) MessageType() uint8 { return d.view.Uint8(gtpMessageTypeOffset) }

// MessageLen returns the message length: everything after the common
// header, optional fields and extension headers included.
func (d *GTPv1U) MessageLen() int { return int(d.view.Uint16(gtpMessageLengthOffset)) }

// TEID returns the tunnel endpoint identifier.
func (d *GTPv1U) TEID() uint32 { return d.view.Uint32(gtpTEIDOffset) }

// SequenceNumber returns the sequence number, or zero when the S flag
// says the field is not significant.
func (d *GTPv1U) SequenceNumber() uint16 {
	if !d.HasSequenceNumber() {
		return 0
	}
	v, err := d.view.Uint16At(gtpSequenceNumberOffset)
	if err != nil {
		return 0
	}
	return v
}

// NPDUNumber returns the N-PDU number, or zero when the PN flag says
// the field is not significant.
func (d *GTPv1U) NPDUNumber() uint8 {
	if !d.HasNPDUNumber() {
		return 0
	}
	v, err := d.view.Uint8At(gtpNPDUNumberOffset)
	if err != nil {
		return 0
	}
	return v
}

// ExtensionHeaders returns the extension-header views, in wire order.
// See walkExtensionHeaders for the record layout.
func (d *GTPv1U) ExtensionHeaders() []netbuf.View { return d.extHeaders }

// DataLen returns the payload length.
func (d *GTPv1U) DataLen() int { return d.dataLen }

// Data returns a view over the payload.
func (d *GTPv1U) Data() netbuf.View {
	sub, _ := d.view.SubLen(d.dataOffset, d.dataLen)
	return sub
}

// IsIPv4PDU reports whether the payload is a T-PDU (an encapsulated
// user packet).
func (d *GTPv1U) IsIPv4PDU() bool { return d.MessageType() == core.GTPMessageTypeTPDU }
