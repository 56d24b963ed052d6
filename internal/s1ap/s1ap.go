// Package s1ap projects S1-AP control-plane messages into the records
// the router consumes. Only Initial Context Setup Request/Response are
// understood; everything else passes through undecoded.
package s1ap

import (
	"net/netip"

	"github.com/epcnet/upf/internal/proc"
)

// SetupRequest is the projection of one E-RAB item in an
// InitialContextSetupRequest.
//
// Field ranges, from 3GPP TS 36.413:
//
//	MME-UE-S1AP-ID ::= INTEGER (0..4294967295)
//	ENB-UE-S1AP-ID ::= INTEGER (0..16777215)
//	E-RAB-ID       ::= INTEGER (0..15, ...)
//	TransportLayerAddress ::= BIT STRING (SIZE(1..160, ...))
//
// We handle IPv4 transport addresses only. TransportAddr is the EPC
// side of the tunnel; UEAddr is the UE address the ASN.1 layer digs
// out of the NAS PDU riding in the item.
type SetupRequest struct {
	MMEUES1APID   uint32
	ENBUES1APID   uint32
	ERABID        uint8
	TransportAddr netip.Addr
	TEID          uint32
	UEAddr        netip.Addr
}

// SetupResponse is the projection of one E-RAB item in an
// InitialContextSetupResponse. TransportAddr is the eNodeB side of
// the tunnel.
type SetupResponse struct {
	MMEUES1APID   uint32
	ENBUES1APID   uint32
	ERABID        uint8
	TransportAddr netip.Addr
	TEID          uint32
}

// PDU is a decoded S1AP-PDU reduced to the projections above. A PDU
// carrying any other procedure decodes to the zero value.
type PDU struct {
	Requests  []SetupRequest
	Responses []SetupResponse
}

// Relevant reports whether the PDU carries anything the router cares
// about.
func (p *PDU) Relevant() bool {
	return len(p.Requests) > 0 || len(p.Responses) > 0
}

// Codec is the narrow boundary to the ASN.1 PER layer. The default
// implementation is ProjectionCodec; a full asn1c-style codec can be
// dropped in behind the same interface.
type Codec interface {
	Decode(data []byte) (*PDU, error)
}

// Context extends the processor context with the decoded PDU for the
// S1-AP hook.
type Context struct {
	*proc.Context
	PDU *PDU
}
