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

func TestGTPv1UBasic(t *testing.T) {
	payload := []byte{0x45, 0x00, 0x00, 0x14}
	packet := nettest.GTPU(0xAABBCCDD, payload)

	d, err := NewGTPv1U(netbuf.NewView(packet))
	require.NoError(t, err)

	assert.Equal(t, uint8(1), d.Version())
	assert.Equal(t, uint8(1), d.ProtocolType())
	assert.False(t, d.HasNextExtension())
	assert.False(t, d.HasSequenceNumber())
	assert.False(t, d.HasNPDUNumber())
	assert.Equal(t, core.GTPMessageTypeTPDU, d.MessageType())
	assert.Equal(t, len(payload), d.MessageLen())
	assert.Equal(t, uint32(0xAABBCCDD), d.TEID())
	assert.True(t, d.IsIPv4PDU())
	assert.Empty(t, d.ExtensionHeaders())
	assert.Equal(t, payload, d.Data().Bytes())
	assert.Equal(t, uint16(0), d.SequenceNumber())
}

func TestGTPv1USequenceNumber(t *testing.T) {
	// S flag set: optional block present, payload begins at the
	// next-extension-type slot.
	packet := []byte{
		0x32, 0xFF, 0x00, 0x09, // flags S, T-PDU, length 9
		0x00, 0x00, 0x00, 0x01, // TEID
		0x12, 0x34, // sequence number
		0x00,                         // N-PDU number
		0x00,                         // next extension type: none
		0x45, 0x00, 0x00, 0x00, 0x00, // payload (starts at the next-ext slot)
	}

	d, err := NewGTPv1U(netbuf.NewView(packet))
	require.NoError(t, err)
	assert.True(t, d.HasSequenceNumber())
	assert.Equal(t, uint16(0x1234), d.SequenceNumber())
	assert.Equal(t, uint8(0), d.NPDUNumber())

	// Payload offset sits at the next-extension-type slot: length is
	// message length + 8 - 11.
	assert.Equal(t, 9+8-11, d.DataLen())
}

func TestGTPv1UExtensionWalk(t *testing.T) {
	// E flag set, two extension headers, then payload. Each stored
	// extension view starts one byte early, at the preceding
	// next-extension-type byte.
	packet := []byte{
		0x34, 0xFF, 0x00, 0x0F, // flags E, T-PDU, length 15
		0x00, 0x00, 0x00, 0x02, // TEID
		0x00, 0x00, // sequence number (present, not significant)
		0x00, // N-PDU number
		0xC0, // first extension type (PDCP PDU number)
		0x01, // ext length: 1 word = 4 bytes
		0x10, 0x20,
		0x85, // next extension type
		0x01, // ext length: 1 word
		0x30, 0x40,
		0x00,             // no more extensions
		0x45, 0x00, 0x00, // inner payload
	}

	d, err := NewGTPv1U(netbuf.NewView(packet))
	require.NoError(t, err)

	exts := d.ExtensionHeaders()
	require.Len(t, exts, 2)

	// Each stored view is a self-describing record: it begins at the
	// preceding header's next-extension-type byte.
	assert.Equal(t, []byte{0xC0, 0x01, 0x10, 0x20}, exts[0].Bytes())
	assert.Equal(t, []byte{0x85, 0x01, 0x30, 0x40}, exts[1].Bytes())

	// The payload view starts at the terminating next-extension-type
	// byte, mirroring the walk's stop position.
	assert.Equal(t, []byte{0x00, 0x45, 0x00, 0x00}, d.Data().Bytes())
}

func TestGTPv1UErrors(t *testing.T) {
	_, err := NewGTPv1U(netbuf.NewView(make([]byte, 7)))
	assert.True(t, errors.Is(err, core.ErrTooShort))

	bad := nettest.GTPU(1, []byte{1, 2, 3, 4})
	bad[0] = 0x20 // GTPv0 nibble
	_, err = NewGTPv1U(netbuf.NewView(bad))
	assert.True(t, errors.Is(err, core.ErrMalformed))

	// Declared message length larger than the buffer.
	bad = nettest.GTPU(1, []byte{1, 2, 3, 4})
	binary.BigEndian.PutUint16(bad[2:], 100)
	_, err = NewGTPv1U(netbuf.NewView(bad))
	assert.True(t, errors.Is(err, core.ErrTooShort))

	// Extension chain running off the buffer.
	bad = []byte{
		0x34, 0xFF, 0x00, 0x08,
		0x00, 0x00, 0x00, 0x02,
		0x00, 0x00, 0x00,
		0xC0, 0x08, // ext claims 32 bytes, buffer has none
	}
	_, err = NewGTPv1U(netbuf.NewView(bad))
	assert.True(t, errors.Is(err, core.ErrMalformed))
}
