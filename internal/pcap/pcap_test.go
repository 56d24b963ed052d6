package pcap

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/nettest"
)

var testMAC = core.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

func ethFrame(payload string) []byte {
	ipv4 := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolUDP, nettest.UDP(1, 2, []byte(payload)))
	return nettest.Eth(testMAC, testMAC, core.EtherTypeIPv4, ipv4)
}

func TestEthModeRoundTrip(t *testing.T) {
	var file bytes.Buffer

	w := NewEthWriter(&file)
	frames := [][]byte{ethFrame("one"), ethFrame("two"), ethFrame("three")}
	for _, f := range frames {
		require.NoError(t, w.ConsumeEth(netbuf.NewView(f), nil))
	}

	r, err := NewReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	buf := netbuf.NewWritableView(make([]byte, netbuf.MaxFrameSize))
	for _, want := range frames {
		got, err := r.ReadEth(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got.Bytes())
	}
	_, err = r.ReadEth(buf)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestEthModeReadIPv4(t *testing.T) {
	var file bytes.Buffer
	w := NewEthWriter(&file)

	ipv4 := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolUDP, nettest.UDP(1, 2, []byte("payload")))
	require.NoError(t, w.ConsumeEth(
		netbuf.NewView(nettest.Eth(testMAC, testMAC, core.EtherTypeIPv4, ipv4)), nil))
	// A non-IPv4 frame yields an empty view on the IPv4 read path.
	require.NoError(t, w.ConsumeEth(
		netbuf.NewView(nettest.Eth(testMAC, testMAC, core.EtherTypeARP, make([]byte, 28))), nil))

	r, err := NewReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)

	buf := netbuf.NewWritableView(make([]byte, netbuf.MaxFrameSize))
	got, err := r.ReadIPv4(buf)
	require.NoError(t, err)
	assert.Equal(t, ipv4, got.Bytes())

	got, err = r.ReadIPv4(buf)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestIPv4ModeRoundTrip(t *testing.T) {
	var file bytes.Buffer
	w := NewIPv4Writer(&file)

	packet := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolUDP, nettest.UDP(2152, 2152, []byte("tunnel")))
	require.NoError(t, w.ConsumeIPv4(netbuf.NewView(packet), nil))

	r, err := NewReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeLinuxSLL, r.LinkType())

	buf := netbuf.NewWritableView(make([]byte, netbuf.MaxFrameSize))
	got, err := r.ReadIPv4(buf)
	require.NoError(t, err)
	assert.Equal(t, packet, got.Bytes())
}

func TestIPv4ModeReadAsEth(t *testing.T) {
	var file bytes.Buffer
	w := NewIPv4Writer(&file)

	packet := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolUDP, nettest.UDP(1, 2, []byte("x")))
	require.NoError(t, w.ConsumeIPv4(netbuf.NewView(packet), nil))

	r, err := NewReader(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)

	// Reading a cooked capture as Ethernet synthesizes a frame: fake
	// destination, the cooked header's MAC as source, and the cooked
	// protocol as EtherType.
	buf := netbuf.NewWritableView(make([]byte, netbuf.MaxFrameSize))
	frame, err := r.ReadEth(buf)
	require.NoError(t, err)

	eth, err := decode.NewEthFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, fakeMAC, eth.DstMAC())
	assert.Equal(t, fakeMAC, eth.SrcMAC())
	assert.True(t, eth.IsIPv4())
	assert.Equal(t, packet, eth.Data().Bytes())
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("this is not a pcap file at all")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIO))
}
