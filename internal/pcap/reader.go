// Package pcap adapts .pcap capture files to the packet sinks and
// sources the core works with. The file format itself (magic numbers,
// endianness, nanosecond variants, record framing) is handled by
// gopacket's pcapgo; this package adds the Ethernet / Linux-cooked
// interpretation the pipeline needs.
package pcap

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/netbuf"
)

const (
	ethHeaderLen = 14

	// Linux cooked (SLL) pseudo-header, always network byte order.
	sllHeaderLen        = 16
	sllPacketTypeOffset = 0
	sllARPHRDOffset     = 2
	sllAddrLenOffset    = 4
	sllAddrOffset       = 6
	sllProtocolOffset   = 14

	sllPacketTypeSentByUs = 4
	sllARPHRDEther        = 1
)

// fakeMAC fills MAC slots we have no real value for.
var fakeMAC = core.MACAddress{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE}

// Reader reads records from a .pcap stream. Supported link types are
// Ethernet (1) and Linux cooked capture (113).
type Reader struct {
	r *pcapgo.Reader
}

// NewReader attaches to a .pcap stream.
func NewReader(ior io.Reader) (*Reader, error) {
	const where = "pcap.NewReader"
	r, err := pcapgo.NewReader(ior)
	if err != nil {
		return nil, &core.IOError{Where: where, Cause: err}
	}
	switch r.LinkType() {
	case layers.LinkTypeEthernet, layers.LinkTypeLinuxSLL:
	default:
		return nil, &core.MalformedError{Where: where, Detail: "unsupported pcap link type"}
	}
	return &Reader{r: r}, nil
}

// LinkType returns the capture's link type.
func (r *Reader) LinkType() layers.LinkType { return r.r.LinkType() }

// ReadEth reads the next record as an Ethernet frame into buf. For
// Linux-cooked captures a minimal Ethernet header is synthesized: the
// destination MAC is always fake, the source MAC comes from the cooked
// header when it carries a 6-byte Ethernet address.
//
// io.EOF is returned untouched at end of file.
func (r *Reader) ReadEth(buf netbuf.WritableView) (netbuf.View, error) {
	const where = "pcap.Reader.ReadEth"

	data, err := r.readRecord(where)
	if err != nil {
		return netbuf.View{}, err
	}

	if r.r.LinkType() == layers.LinkTypeEthernet {
		if len(data) > buf.Size() {
			return netbuf.View{}, &core.CapacityExceededError{Needed: len(data), Available: buf.Size(), Where: where}
		}
		copy(buf.WritableBytes(), data)
		return buf.SubLen(0, len(data))
	}

	// Linux cooked: record is SLL header + L3 payload.
	if len(data) < sllHeaderLen {
		return netbuf.View{}, &core.TooShortError{Needed: sllHeaderLen, Available: len(data), Where: where}
	}
	payload := data[sllHeaderLen:]
	if ethHeaderLen+len(payload) > buf.Size() {
		return netbuf.View{}, &core.CapacityExceededError{Needed: ethHeaderLen + len(payload), Available: buf.Size(), Where: where}
	}

	buf.SetMAC(0, fakeMAC)
	arphrd := binary.BigEndian.Uint16(data[sllARPHRDOffset:])
	addrLen := binary.BigEndian.Uint16(data[sllAddrLenOffset:])
	if arphrd == sllARPHRDEther && addrLen == 6 {
		buf.SetMAC(6, core.MACAddress(data[sllAddrOffset:sllAddrOffset+6]))
	} else {
		buf.SetMAC(6, fakeMAC)
	}
	buf.SetUint16(12, binary.BigEndian.Uint16(data[sllProtocolOffset:]))
	copy(buf.WritableBytes()[ethHeaderLen:], payload)

	return buf.SubLen(0, ethHeaderLen+len(payload))
}

// ReadIPv4 reads the next record and returns a view over its IPv4
// payload inside buf. Records not carrying IPv4 yield an empty view,
// not an error.
func (r *Reader) ReadIPv4(buf netbuf.WritableView) (netbuf.View, error) {
	const where = "pcap.Reader.ReadIPv4"

	data, err := r.readRecord(where)
	if err != nil {
		return netbuf.View{}, err
	}

	if r.r.LinkType() == layers.LinkTypeEthernet {
		if len(data) > buf.Size() {
			return netbuf.View{}, &core.CapacityExceededError{Needed: len(data), Available: buf.Size(), Where: where}
		}
		copy(buf.WritableBytes(), data)
		frame, err := buf.SubLen(0, len(data))
		if err != nil {
			return netbuf.View{}, err
		}
		eth, err := decode.NewEthFrame(frame)
		if err != nil {
			return netbuf.View{}, err
		}
		if !eth.IsIPv4() {
			return netbuf.View{}, nil
		}
		return eth.Data(), nil
	}

	// Linux cooked.
	if len(data) < sllHeaderLen {
		return netbuf.View{}, &core.TooShortError{Needed: sllHeaderLen, Available: len(data), Where: where}
	}
	if binary.BigEndian.Uint16(data[sllProtocolOffset:]) != core.EtherTypeIPv4 {
		return netbuf.View{}, nil
	}
	payload := data[sllHeaderLen:]
	if len(payload) > buf.Size() {
		return netbuf.View{}, &core.CapacityExceededError{Needed: len(payload), Available: buf.Size(), Where: where}
	}
	copy(buf.WritableBytes(), payload)
	return buf.SubLen(0, len(payload))
}

func (r *Reader) readRecord(where string) ([]byte, error) {
	data, _, err := r.r.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &core.IOError{Where: where, Cause: err}
	}
	return data, nil
}

// FileReader is a Reader over an opened .pcap file.
type FileReader struct {
	Reader
	f *os.File
}

// OpenFile opens a .pcap file for reading.
func OpenFile(path string) (*FileReader, error) {
	const where = "pcap.OpenFile"
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.IOError{Where: where, Cause: err}
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileReader{Reader: *r, f: f}, nil
}

// Close closes the underlying file.
func (r *FileReader) Close() error { return r.f.Close() }
