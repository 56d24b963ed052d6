package s1ap

import (
	"net/netip"

	"github.com/epcnet/upf/internal/core"
)

// S1AP-PDU framing constants (3GPP TS 36.413, aligned PER).
const (
	pduInitiatingMessage    = 0x00
	pduSuccessfulOutcome    = 0x20
	pduTypeMask             = 0xE0
	procInitialContextSetup = 9

	criticalityReject = 0x00
	criticalityIgnore = 0x40
)

// Protocol IE ids (TS 36.413 sect. 9.3.3).
const (
	ieMMEUES1APID           = 0
	ieENBUES1APID           = 8
	ieERABToBeSetupListCtxt = 24
	ieERABSetupListCtxtRes  = 51
	ieERABSetupItemCtxtRes  = 50
	ieERABToBeSetupItemCtxt = 52
)

// ProjectionCodec encodes and decodes the aligned-PER-shaped framing
// of InitialContextSetup Request/Response down to the fields the
// router consumes: PDU choice, procedure code, criticality, length
// determinants, the protocol-IE list, and the E-RAB item payloads
// (e-RAB id, IPv4 transport layer address, GTP TEID, and on requests
// the UE IPv4 address from the embedded NAS PDU). IEs it does not
// recognize are skipped by their length determinant. ASN.1 extension
// groups are not handled; a full codec stays an external collaborator
// behind the Codec interface.
type ProjectionCodec struct{}

// Decode implements Codec. PDUs of other procedures yield an empty
// projection, not an error.
func (ProjectionCodec) Decode(data []byte) (*PDU, error) {
	const where = "s1ap.ProjectionCodec.Decode"

	r := &aperReader{data: data, where: where}
	pduType := r.byte() & pduTypeMask
	procedureCode := r.byte()
	r.byte() // criticality
	valueLen := r.lengthDeterminant()
	value := r.bytes(valueLen)
	if r.err != nil {
		return nil, r.err
	}

	if procedureCode != procInitialContextSetup {
		return &PDU{}, nil
	}

	switch pduType {
	case pduInitiatingMessage:
		return decodeRequest(value, where)
	case pduSuccessfulOutcome:
		return decodeResponse(value, where)
	default:
		return &PDU{}, nil
	}
}

func decodeRequest(value []byte, where string) (*PDU, error) {
	r := &aperReader{data: value, where: where}
	r.byte() // sequence preamble
	ieCount := int(r.uint16())

	pdu := &PDU{}
	var mmeID, enbID uint32
	var haveMME, haveENB bool
	type item struct {
		erabID        uint8
		transportAddr netip.Addr
		teid          uint32
		ueAddr        netip.Addr
	}
	var items []item

	for i := 0; i < ieCount && r.err == nil; i++ {
		ieID := r.uint16()
		r.byte() // criticality
		ieLen := r.lengthDeterminant()
		ieValue := r.bytes(ieLen)
		if r.err != nil {
			break
		}

		ir := &aperReader{data: ieValue, where: where}
		switch ieID {
		case ieMMEUES1APID:
			mmeID = ir.uint32()
			haveMME = ir.err == nil
		case ieENBUES1APID:
			enbID = ir.uint24()
			haveENB = ir.err == nil
		case ieERABToBeSetupListCtxt:
			itemCount := int(ir.byte())
			for j := 0; j < itemCount && ir.err == nil; j++ {
				itemID := ir.uint16()
				ir.byte() // criticality
				itemLen := ir.lengthDeterminant()
				itemValue := ir.bytes(itemLen)
				if ir.err != nil || itemID != ieERABToBeSetupItemCtxt {
					continue
				}

				vr := &aperReader{data: itemValue, where: where}
				var it item
				it.erabID = vr.byte()
				it.transportAddr = vr.addr()
				it.teid = vr.uint32()
				if vr.byte() == 1 {
					it.ueAddr = vr.addr()
				}
				if vr.err == nil {
					items = append(items, it)
				}
			}
		}
		if ir.err != nil {
			return nil, ir.err
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if !haveMME || !haveENB {
		return nil, &core.MalformedError{Where: where, Detail: "request misses UE S1AP ids"}
	}

	for _, it := range items {
		pdu.Requests = append(pdu.Requests, SetupRequest{
			MMEUES1APID:   mmeID,
			ENBUES1APID:   enbID,
			ERABID:        it.erabID,
			TransportAddr: it.transportAddr,
			TEID:          it.teid,
			UEAddr:        it.ueAddr,
		})
	}
	return pdu, nil
}

func decodeResponse(value []byte, where string) (*PDU, error) {
	r := &aperReader{data: value, where: where}
	r.byte() // sequence preamble
	ieCount := int(r.uint16())

	pdu := &PDU{}
	var mmeID, enbID uint32
	var haveMME, haveENB bool
	type item struct {
		erabID        uint8
		transportAddr netip.Addr
		teid          uint32
	}
	var items []item

	for i := 0; i < ieCount && r.err == nil; i++ {
		ieID := r.uint16()
		r.byte() // criticality
		ieLen := r.lengthDeterminant()
		ieValue := r.bytes(ieLen)
		if r.err != nil {
			break
		}

		ir := &aperReader{data: ieValue, where: where}
		switch ieID {
		case ieMMEUES1APID:
			mmeID = ir.uint32()
			haveMME = ir.err == nil
		case ieENBUES1APID:
			enbID = ir.uint24()
			haveENB = ir.err == nil
		case ieERABSetupListCtxtRes:
			itemCount := int(ir.byte())
			for j := 0; j < itemCount && ir.err == nil; j++ {
				itemID := ir.uint16()
				ir.byte() // criticality
				itemLen := ir.lengthDeterminant()
				itemValue := ir.bytes(itemLen)
				if ir.err != nil || itemID != ieERABSetupItemCtxtRes {
					continue
				}

				vr := &aperReader{data: itemValue, where: where}
				var it item
				it.erabID = vr.byte()
				it.transportAddr = vr.addr()
				it.teid = vr.uint32()
				if vr.err == nil {
					items = append(items, it)
				}
			}
		}
		if ir.err != nil {
			return nil, ir.err
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if !haveMME || !haveENB {
		return nil, &core.MalformedError{Where: where, Detail: "response misses UE S1AP ids"}
	}

	for _, it := range items {
		pdu.Responses = append(pdu.Responses, SetupResponse{
			MMEUES1APID:   mmeID,
			ENBUES1APID:   enbID,
			ERABID:        it.erabID,
			TransportAddr: it.transportAddr,
			TEID:          it.teid,
		})
	}
	return pdu, nil
}

// EncodeRequest builds the wire form of an InitialContextSetupRequest
// carrying the given E-RAB items. All items must agree on the UE S1AP
// ids. Used by tests and traffic simulation.
func EncodeRequest(items []SetupRequest) []byte {
	if len(items) == 0 {
		return nil
	}

	var list aperWriter
	list.writeByte(uint8(len(items)))
	for _, it := range items {
		var iv aperWriter
		iv.writeByte(it.ERABID)
		iv.writeAddr(it.TransportAddr)
		iv.writeUint32(it.TEID)
		if it.UEAddr.IsValid() {
			iv.writeByte(1)
			iv.writeAddr(it.UEAddr)
		} else {
			iv.writeByte(0)
		}
		list.writeUint16(ieERABToBeSetupItemCtxt)
		list.writeByte(criticalityReject)
		list.writeLengthDeterminant(len(iv.buf))
		list.write(iv.buf)
	}

	var msg aperWriter
	msg.writeByte(0) // sequence preamble
	msg.writeUint16(3)
	msg.writeIE(ieMMEUES1APID, criticalityReject, u32Bytes(items[0].MMEUES1APID))
	msg.writeIE(ieENBUES1APID, criticalityReject, u24Bytes(items[0].ENBUES1APID))
	msg.writeIE(ieERABToBeSetupListCtxt, criticalityReject, list.buf)

	var pdu aperWriter
	pdu.writeByte(pduInitiatingMessage)
	pdu.writeByte(procInitialContextSetup)
	pdu.writeByte(criticalityReject)
	pdu.writeLengthDeterminant(len(msg.buf))
	pdu.write(msg.buf)
	return pdu.buf
}

// EncodeResponse builds the wire form of an
// InitialContextSetupResponse carrying the given E-RAB items.
func EncodeResponse(items []SetupResponse) []byte {
	if len(items) == 0 {
		return nil
	}

	var list aperWriter
	list.writeByte(uint8(len(items)))
	for _, it := range items {
		var iv aperWriter
		iv.writeByte(it.ERABID)
		iv.writeAddr(it.TransportAddr)
		iv.writeUint32(it.TEID)
		list.writeUint16(ieERABSetupItemCtxtRes)
		list.writeByte(criticalityIgnore)
		list.writeLengthDeterminant(len(iv.buf))
		list.write(iv.buf)
	}

	var msg aperWriter
	msg.writeByte(0) // sequence preamble
	msg.writeUint16(3)
	msg.writeIE(ieMMEUES1APID, criticalityIgnore, u32Bytes(items[0].MMEUES1APID))
	msg.writeIE(ieENBUES1APID, criticalityIgnore, u24Bytes(items[0].ENBUES1APID))
	msg.writeIE(ieERABSetupListCtxtRes, criticalityIgnore, list.buf)

	var pdu aperWriter
	pdu.writeByte(pduSuccessfulOutcome)
	pdu.writeByte(procInitialContextSetup)
	pdu.writeByte(criticalityIgnore)
	pdu.writeLengthDeterminant(len(msg.buf))
	pdu.write(msg.buf)
	return pdu.buf
}

func u32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u24Bytes(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
