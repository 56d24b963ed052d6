package decode

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/nettest"
)

func TestUDPBasic(t *testing.T) {
	dgram := nettest.UDP(2152, 53, []byte("payload"))

	d, err := NewUDP(netbuf.NewView(dgram))
	require.NoError(t, err)

	assert.Equal(t, uint16(2152), d.SrcPort())
	assert.Equal(t, uint16(53), d.DstPort())
	assert.Equal(t, 15, d.TotalLen())
	assert.Equal(t, 7, d.DataLen())

	data, err := d.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data.Bytes())

	_, err = NewUDP(netbuf.NewView(make([]byte, 7)))
	assert.True(t, errors.Is(err, core.ErrTooShort))
}

func TestUDPGTPHeuristic(t *testing.T) {
	inner := make([]byte, 24)
	gtp := nettest.GTPU(0x11223344, inner)

	d, err := NewUDP(netbuf.NewView(nettest.UDP(2152, 2152, gtp)))
	require.NoError(t, err)
	assert.True(t, d.IsGTPv1U())

	// The destination port is deliberately not part of the heuristic.
	d, err = NewUDP(netbuf.NewView(nettest.UDP(1234, 5678, gtp)))
	require.NoError(t, err)
	assert.True(t, d.IsGTPv1U())

	// Payload of exactly 8 bytes is too short to carry anything.
	short := nettest.GTPU(1, nil)
	d, err = NewUDP(netbuf.NewView(nettest.UDP(2152, 2152, short)))
	require.NoError(t, err)
	assert.False(t, d.IsGTPv1U())

	// Wrong version nibble.
	bad := nettest.GTPU(1, inner)
	bad[0] = 0x20
	d, err = NewUDP(netbuf.NewView(nettest.UDP(2152, 2152, bad)))
	require.NoError(t, err)
	assert.False(t, d.IsGTPv1U())

	// Message length that disagrees with the UDP payload length.
	bad = nettest.GTPU(1, inner)
	binary.BigEndian.PutUint16(bad[2:], uint16(len(inner)+1))
	d, err = NewUDP(netbuf.NewView(nettest.UDP(2152, 2152, bad)))
	require.NoError(t, err)
	assert.False(t, d.IsGTPv1U())
}

func TestTCPBasic(t *testing.T) {
	segment := make([]byte, 28)
	binary.BigEndian.PutUint16(segment[0:], 443)
	binary.BigEndian.PutUint16(segment[2:], 51000)
	binary.BigEndian.PutUint32(segment[4:], 1000)
	binary.BigEndian.PutUint32(segment[8:], 2000)
	// Data offset 6 words (24 bytes: includes one option word),
	// flags SYN+ACK.
	binary.BigEndian.PutUint16(segment[12:], 6<<12|1<<TCPFlagSYN|1<<TCPFlagACK)
	binary.BigEndian.PutUint16(segment[14:], 0xFFFF)

	d, err := NewTCP(netbuf.NewView(segment))
	require.NoError(t, err)

	assert.Equal(t, uint16(443), d.SrcPort())
	assert.Equal(t, uint16(51000), d.DstPort())
	assert.Equal(t, uint32(1000), d.SeqNum())
	assert.Equal(t, uint32(2000), d.AckNum())
	assert.Equal(t, 24, d.DataOffsetBytes())
	assert.True(t, d.Flag(TCPFlagSYN))
	assert.True(t, d.Flag(TCPFlagACK))
	assert.False(t, d.Flag(TCPFlagFIN))
	assert.False(t, d.Flag(TCPFlagRST))
	assert.Equal(t, uint16(0xFFFF), d.Window())

	data, err := d.Data()
	require.NoError(t, err)
	assert.Equal(t, 4, data.Size())

	_, err = NewTCP(netbuf.NewView(make([]byte, 19)))
	assert.True(t, errors.Is(err, core.ErrTooShort))
}
