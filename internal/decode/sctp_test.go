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

func TestSCTPChunkIteration(t *testing.T) {
	// Common header + SACK chunk (length 5 with header, padded to 8)
	// + DATA chunk.
	packet := []byte{
		0x8E, 0x7C, 0x0E, 0x3C, // ports
		0x00, 0x00, 0x00, 0x2A, // verification tag
		0x00, 0x00, 0x00, 0x00, // checksum
		// SACK chunk: type 3, flags 0, length 5 (padded to 8)
		0x03, 0x00, 0x00, 0x05,
		0xAA, 0x00, 0x00, 0x00,
		// DATA chunk: type 0, flags B|E, length 17 (16 header + 1)
		0x00, 0x03, 0x00, 0x11,
		0x00, 0x00, 0x00, 0x07, // TSN
		0x00, 0x01, 0x00, 0x02, // stream id, stream seq
		0x00, 0x00, 0x00, 0x12, // PPID 18
		0x5A, 0x00, 0x00, 0x00, // payload + padding
	}

	d, err := NewSCTP(netbuf.NewView(packet))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x2A), d.VerificationTag())
	chunks := d.Chunks()
	require.Len(t, chunks, 2)

	assert.Equal(t, core.SCTPChunkSack, chunks[0].Type())
	assert.Equal(t, 5, chunks[0].TotalLen())
	assert.False(t, chunks[0].IsDataChunk())

	assert.True(t, chunks[1].IsDataChunk())
	dc, err := NewSCTPDataChunk(chunks[1].Data())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), dc.TSN())
	assert.Equal(t, uint16(1), dc.StreamID())
	assert.Equal(t, uint16(2), dc.StreamSeq())
	assert.Equal(t, core.PPIDS1AP, dc.PPID())
	assert.True(t, dc.IsS1AP())
	assert.True(t, dc.FlagB())
	assert.True(t, dc.FlagE())
	assert.False(t, dc.FlagU())
	assert.False(t, dc.IsFragment())

	data, err := dc.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x5A}, data.Bytes())
}

func TestSCTPDataChunkFragmentFlags(t *testing.T) {
	tests := []struct {
		name     string
		flags    uint8
		fragment bool
	}{
		{"complete B and E", 0x03, false},
		{"first fragment B only", 0x02, true},
		{"middle fragment", 0x00, true},
		{"last fragment E only", 0x01, true},
		{"unordered complete", 0x07, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := nettest.SCTPDataFlags(36412, 36412, 18, tt.flags, []byte("x"))
			d, err := NewSCTP(netbuf.NewView(packet))
			require.NoError(t, err)
			require.Len(t, d.Chunks(), 1)
			dc, err := NewSCTPDataChunk(d.Chunks()[0].Data())
			require.NoError(t, err)
			assert.Equal(t, tt.fragment, dc.IsFragment())
		})
	}
}

func TestSCTPMalformed(t *testing.T) {
	_, err := NewSCTP(netbuf.NewView(make([]byte, 11)))
	assert.True(t, errors.Is(err, core.ErrTooShort))

	// A chunk whose padded length walks past the buffer end.
	packet := nettest.SCTPData(1, 2, 18, []byte("hello"))
	binary.BigEndian.PutUint16(packet[14:], 200)
	_, err = NewSCTP(netbuf.NewView(packet))
	assert.True(t, errors.Is(err, core.ErrMalformed))

	// A chunk length below the chunk-header minimum.
	packet = nettest.SCTPData(1, 2, 18, []byte("hello"))
	binary.BigEndian.PutUint16(packet[14:], 2)
	_, err = NewSCTP(netbuf.NewView(packet))
	assert.True(t, errors.Is(err, core.ErrMalformed))
}
