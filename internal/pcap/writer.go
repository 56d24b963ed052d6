package pcap

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

const writerSnaplen = 262144

// Writer writes records to a .pcap stream in one of two modes:
//
//   - Ethernet mode (link type 1): records are Ethernet frames,
//     written as-is.
//   - IPv4 mode (link type 113): records are IPv4 packets; a
//     Linux-cooked pseudo-header is prepended to each, declaring
//     "sent by us", an Ethernet address type, and a fake MAC.
//
// The file header is written lazily with the first record. Writer
// implements the matching sink interface for its mode.
type Writer struct {
	w             *pcapgo.Writer
	linkType      layers.LinkType
	headerWritten bool
}

// NewEthWriter creates a Writer in Ethernet mode.
func NewEthWriter(iow io.Writer) *Writer {
	return &Writer{w: pcapgo.NewWriter(iow), linkType: layers.LinkTypeEthernet}
}

// NewIPv4Writer creates a Writer in IPv4 mode.
func NewIPv4Writer(iow io.Writer) *Writer {
	return &Writer{w: pcapgo.NewWriter(iow), linkType: layers.LinkTypeLinuxSLL}
}

func (w *Writer) writeRecord(where string, data []byte) error {
	if !w.headerWritten {
		if err := w.w.WriteFileHeader(writerSnaplen, w.linkType); err != nil {
			return &core.IOError{Where: where, Cause: err}
		}
		w.headerWritten = true
	}

	if w.linkType == layers.LinkTypeLinuxSLL {
		record := make([]byte, sllHeaderLen+len(data))
		binary.BigEndian.PutUint16(record[sllPacketTypeOffset:], sllPacketTypeSentByUs)
		binary.BigEndian.PutUint16(record[sllARPHRDOffset:], sllARPHRDEther)
		binary.BigEndian.PutUint16(record[sllAddrLenOffset:], 6)
		copy(record[sllAddrOffset:], fakeMAC[:])
		binary.BigEndian.PutUint16(record[sllProtocolOffset:], core.EtherTypeIPv4)
		copy(record[sllHeaderLen:], data)
		data = record
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.w.WritePacket(ci, data); err != nil {
		return &core.IOError{Where: where, Cause: err}
	}
	return nil
}

// ConsumeEth implements netbuf.EthSink (Ethernet mode).
func (w *Writer) ConsumeEth(frame netbuf.View, _ *core.UserData) error {
	return w.writeRecord("pcap.Writer.ConsumeEth", frame.Bytes())
}

// ConsumeIPv4 implements netbuf.IPv4Sink (IPv4 mode).
func (w *Writer) ConsumeIPv4(packet netbuf.View, _ *core.UserData) error {
	return w.writeRecord("pcap.Writer.ConsumeIPv4", packet.Bytes())
}

// FileWriter is a Writer into a created .pcap file.
type FileWriter struct {
	Writer
	f *os.File
}

// CreateEthFile creates an Ethernet-mode .pcap file.
func CreateEthFile(path string) (*FileWriter, error) {
	return createFile(path, NewEthWriter)
}

// CreateIPv4File creates an IPv4-mode .pcap file.
func CreateIPv4File(path string) (*FileWriter, error) {
	return createFile(path, NewIPv4Writer)
}

func createFile(path string, mk func(io.Writer) *Writer) (*FileWriter, error) {
	const where = "pcap.createFile"
	f, err := os.Create(path)
	if err != nil {
		return nil, &core.IOError{Where: where, Cause: err}
	}
	return &FileWriter{Writer: *mk(f), f: f}, nil
}

// Close closes the underlying file.
func (w *FileWriter) Close() error { return w.f.Close() }
