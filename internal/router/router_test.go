package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/nettest"
	"github.com/epcnet/upf/internal/proc"
	"github.com/epcnet/upf/internal/s1ap"
)

var (
	epcAddr = nettest.Addr("10.0.0.1")
	enbAddr = nettest.Addr("10.0.0.2")
	ueAddr  = nettest.Addr("192.168.2.2")
)

// s1apPacket wraps an encoded S1AP-PDU into SCTP/IPv4 the way it
// appears on the S1-MME interface.
func s1apPacket(src, dst string, pdu []byte) netbuf.View {
	sctp := nettest.SCTPData(36412, core.PortS1AP, core.PPIDS1AP, pdu)
	return netbuf.NewView(nettest.IPv4(
		nettest.Addr(src), nettest.Addr(dst), core.ProtocolSCTP, sctp))
}

func setupRequest() []byte {
	return s1ap.EncodeRequest([]s1ap.SetupRequest{{
		MMEUES1APID:   1,
		ENBUES1APID:   42,
		ERABID:        5,
		TransportAddr: epcAddr,
		TEID:          0xAABBCCDD,
		UEAddr:        ueAddr,
	}})
}

func setupResponse() []byte {
	return s1ap.EncodeResponse([]s1ap.SetupResponse{{
		MMEUES1APID:   1,
		ENBUES1APID:   42,
		ERABID:        5,
		TransportAddr: enbAddr,
		TEID:          0x11223344,
	}})
}

// Scenario: a Request followed by its Response yields exactly one UE
// map entry with both endpoints filled, and an empty setup map.
func TestRequestResponsePair(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})

	relevant := 0
	r.OnS1APRelevantTraffic = func() { relevant++ }

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	assert.Empty(t, r.UEMap())
	assert.Equal(t, 1, r.PendingSetups())

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))
	assert.Equal(t, 0, r.PendingSetups())

	require.Len(t, r.UEMap(), 1)
	tunnel, ok := r.LookupUE(ueAddr)
	require.True(t, ok)
	assert.Equal(t, enbAddr, tunnel.ENB.Addr)
	assert.Equal(t, uint32(0x11223344), tunnel.ENB.TEID)
	assert.Equal(t, epcAddr, tunnel.EPC.Addr)
	assert.Equal(t, uint32(0xAABBCCDD), tunnel.EPC.TEID)
	assert.Equal(t, core.PortUnspecified, tunnel.ENB.Port)
	assert.Equal(t, core.PortUnspecified, tunnel.EPC.Port)

	assert.Equal(t, 2, relevant)
}

// Scenario: a Response arriving before its Request is silently
// ignored; both maps stay empty.
func TestOrphanResponseIgnored(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))
	assert.Empty(t, r.UEMap())
	assert.Equal(t, 0, r.PendingSetups())
}

func TestMismatchedKeyLeavesSetupPending(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))

	other := s1ap.EncodeResponse([]s1ap.SetupResponse{{
		MMEUES1APID: 1, ENBUES1APID: 42, ERABID: 6, // different E-RAB
		TransportAddr: enbAddr, TEID: 1,
	}})
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", other), nil))

	assert.Empty(t, r.UEMap())
	assert.Equal(t, 1, r.PendingSetups())
}

func TestUpsertHookVetoAndRewrite(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})
	r.BeforeUEMapUpsert = func(entry *UEMapEntry) bool { return false }

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))

	// Vetoed: no entry, but the setup-map entry is gone regardless.
	assert.Empty(t, r.UEMap())
	assert.Equal(t, 0, r.PendingSetups())

	// The hook may rewrite the entry before it lands.
	rewritten := nettest.Addr("172.16.0.9")
	r.BeforeUEMapUpsert = func(entry *UEMapEntry) bool {
		entry.UEAddr = rewritten
		entry.Tunnel.ENB.Port = core.PortGTPv1U
		return true
	}
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))

	require.Len(t, r.UEMap(), 1)
	tunnel, ok := r.LookupUE(rewritten)
	require.True(t, ok)
	assert.Equal(t, core.PortGTPv1U, tunnel.ENB.Port)
}

func TestRepeatedPairOverwritesEntry(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))

	// The same UE sets up again with a new eNB TEID.
	resp2 := s1ap.EncodeResponse([]s1ap.SetupResponse{{
		MMEUES1APID: 1, ENBUES1APID: 42, ERABID: 5,
		TransportAddr: enbAddr, TEID: 0x99999999,
	}})
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", resp2), nil))

	require.Len(t, r.UEMap(), 1)
	tunnel, _ := r.LookupUE(ueAddr)
	assert.Equal(t, uint32(0x99999999), tunnel.ENB.TEID)
}

// SCTP carrying S1-AP must survive to final processing: the router
// clears the IPv4 post-processing phase for all SCTP, so the
// post-process hook cannot drop it.
func TestSCTPBypassesPostProcessing(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})

	postFired := 0
	finalFired := 0
	r.OnIPv4PostProcess(func(ctx *proc.Context) bool {
		postFired++
		return false
	})
	r.OnFinalProcess(func(ctx *proc.Context) { finalFired++ })

	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	assert.Zero(t, postFired)
	assert.Equal(t, 1, finalFired)

	// Non-S1AP SCTP takes the same path.
	sctp := nettest.SCTPData(5000, 5001, 99, []byte("not s1ap"))
	packet := netbuf.NewView(nettest.IPv4(
		nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"), core.ProtocolSCTP, sctp))
	require.NoError(t, r.ConsumeIPv4(packet, nil))
	assert.Zero(t, postFired)
	assert.Equal(t, 2, finalFired)

	// Plain UDP traffic does hit post-processing.
	udp := netbuf.NewView(nettest.IPv4(
		nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"), core.ProtocolUDP,
		nettest.UDP(1, 2, []byte("x"))))
	require.NoError(t, r.ConsumeIPv4(udp, nil))
	assert.Equal(t, 1, postFired)
	assert.Equal(t, 2, finalFired)
}

// SCTP fragments (B and E not both set) pass through without S1-AP
// processing.
func TestSCTPFragmentNotDecoded(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})

	sctp := nettest.SCTPDataFlags(36412, core.PortS1AP, core.PPIDS1AP, 0x02, setupRequest())
	packet := netbuf.NewView(nettest.IPv4(
		nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"), core.ProtocolSCTP, sctp))

	require.NoError(t, r.ConsumeIPv4(packet, nil))
	assert.Equal(t, 0, r.PendingSetups())
}

func TestIsIPv4TrafficOfKnownUE(t *testing.T) {
	r := New(s1ap.ProjectionCodec{})
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.1", "10.0.0.2", setupRequest()), nil))
	require.NoError(t, r.ConsumeIPv4(s1apPacket("10.0.0.2", "10.0.0.1", setupResponse()), nil))

	fromUE := netbuf.NewView(nettest.IPv4(ueAddr, nettest.Addr("8.8.8.8"),
		core.ProtocolUDP, nettest.UDP(1, 2, nil)))
	toUE := netbuf.NewView(nettest.IPv4(nettest.Addr("8.8.8.8"), ueAddr,
		core.ProtocolUDP, nettest.UDP(1, 2, nil)))
	neither := netbuf.NewView(nettest.IPv4(nettest.Addr("8.8.8.8"), nettest.Addr("9.9.9.9"),
		core.ProtocolUDP, nettest.UDP(1, 2, nil)))

	known, err := r.IsIPv4TrafficOfKnownUE(fromUE)
	require.NoError(t, err)
	assert.True(t, known)

	known, err = r.IsIPv4TrafficOfKnownUE(toUE)
	require.NoError(t, err)
	assert.True(t, known)

	known, err = r.IsIPv4TrafficOfKnownUE(neither)
	require.NoError(t, err)
	assert.False(t, known)

	_, err = r.IsIPv4TrafficOfKnownUE(netbuf.NewView(make([]byte, 4)))
	assert.Error(t, err)
}
