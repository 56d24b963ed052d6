package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/nettest"
)

var (
	macA = core.MACAddress{1, 1, 1, 1, 1, 1}
	macB = core.MACAddress{2, 2, 2, 2, 2, 2}
)

func udpFrame(payload []byte) netbuf.View {
	ipv4 := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolUDP, nettest.UDP(1111, 2222, payload))
	return netbuf.NewView(nettest.Eth(macA, macB, core.EtherTypeIPv4, ipv4))
}

func TestHookOrderUDP(t *testing.T) {
	var order []string
	record := func(name string) HookFunc {
		return func(ctx *Context) bool {
			order = append(order, name)
			return true
		}
	}

	p := &Processor{Hooks: Hooks{
		Eth:       record("eth"),
		ChainEth:  record("chain-eth"),
		IPv4:      record("ipv4"),
		ChainIPv4: record("chain-ipv4"),
		UDP:       record("udp"),
		ChainUDP:  record("chain-udp"),
		PostIPv4:  record("post-ipv4"),
		Final: func(ctx *Context) {
			order = append(order, "final")
		},
	}}

	require.NoError(t, p.ConsumeEth(udpFrame([]byte("x")), nil))
	assert.Equal(t, []string{
		"eth", "chain-eth", "ipv4", "chain-ipv4",
		"udp", "chain-udp", "post-ipv4", "final",
	}, order)
}

func TestDecoderReferencesPopulatedAndCleared(t *testing.T) {
	p := &Processor{}
	sawUDP := false
	p.Hooks.UDP = func(ctx *Context) bool {
		sawUDP = true
		assert.NotNil(t, ctx.Eth)
		assert.NotNil(t, ctx.IPv4)
		assert.NotNil(t, ctx.UDP)
		assert.Nil(t, ctx.TCP)
		assert.Nil(t, ctx.GTPv1U)
		return true
	}
	p.Hooks.Final = func(ctx *Context) {
		// On layer exit the per-layer references are cleared again.
		assert.Nil(t, ctx.IPv4)
		assert.Nil(t, ctx.UDP)
		assert.NotNil(t, ctx.Eth)
	}

	require.NoError(t, p.ConsumeEth(udpFrame([]byte("x")), nil))
	assert.True(t, sawUDP)
}

func TestShortCircuitSkipsDescentAndFinal(t *testing.T) {
	fired := map[string]int{}
	p := &Processor{Hooks: Hooks{
		IPv4: func(ctx *Context) bool {
			fired["ipv4"]++
			return false
		},
		UDP: func(ctx *Context) bool {
			fired["udp"]++
			return true
		},
		PostIPv4: func(ctx *Context) bool {
			fired["post"]++
			return true
		},
		Final: func(ctx *Context) { fired["final"]++ },
	}}

	require.NoError(t, p.ConsumeEth(udpFrame([]byte("x")), nil))
	assert.Equal(t, 1, fired["ipv4"])
	assert.Zero(t, fired["udp"])
	assert.Zero(t, fired["post"])
	assert.Zero(t, fired["final"])
}

func TestPostProcessVeto(t *testing.T) {
	fired := map[string]int{}
	p := &Processor{Hooks: Hooks{
		UDP: func(ctx *Context) bool {
			ctx.PostProcessIPv4 = false
			return true
		},
		PostIPv4: func(ctx *Context) bool {
			fired["post"]++
			return true
		},
		Final: func(ctx *Context) { fired["final"]++ },
	}}

	require.NoError(t, p.ConsumeEth(udpFrame([]byte("x")), nil))
	assert.Zero(t, fired["post"])
	assert.Equal(t, 1, fired["final"])
}

// Scenario: an Ethernet frame carrying IPv6 fires the non-IPv4 hook
// exactly once, never the IPv4 hook, and final processing follows the
// non-IPv4 hook's verdict.
func TestNonIPv4(t *testing.T) {
	frame := netbuf.NewView(nettest.Eth(macA, macB, core.EtherTypeIPv6, make([]byte, 40)))

	fired := map[string]int{}
	p := &Processor{Hooks: Hooks{
		IPv4:    func(ctx *Context) bool { fired["ipv4"]++; return true },
		NonIPv4: func(ctx *Context) bool { fired["non-ipv4"]++; return true },
		Final:   func(ctx *Context) { fired["final"]++ },
	}}
	require.NoError(t, p.ConsumeEth(frame, nil))
	assert.Zero(t, fired["ipv4"])
	assert.Equal(t, 1, fired["non-ipv4"])
	assert.Equal(t, 1, fired["final"])

	// When the non-IPv4 hook vetoes, final does not run.
	fired = map[string]int{}
	p.Hooks.NonIPv4 = func(ctx *Context) bool { fired["non-ipv4"]++; return false }
	require.NoError(t, p.ConsumeEth(frame, nil))
	assert.Equal(t, 1, fired["non-ipv4"])
	assert.Zero(t, fired["final"])
}

func TestGTPv1UCascade(t *testing.T) {
	inner := nettest.IPv4(nettest.Addr("192.168.2.2"), nettest.Addr("8.8.8.8"),
		core.ProtocolUDP, nettest.UDP(1, 2, []byte("hi")))
	frame := udpFrame(nettest.GTPU(0x42, inner))

	var got []byte
	fired := 0
	p := &Processor{Hooks: Hooks{
		GTPv1UIPv4: func(ctx *Context) bool {
			fired++
			require.NotNil(t, ctx.GTPv1U)
			got = ctx.GTPv1U.Data().Bytes()
			return true
		},
	}}
	require.NoError(t, p.ConsumeEth(frame, nil))
	assert.Equal(t, 1, fired)
	assert.Equal(t, inner, got)
}

func TestSCTPChunkCascade(t *testing.T) {
	sctp := nettest.SCTPData(100, core.PortS1AP, core.PPIDS1AP, []byte("pdu"))
	ipv4 := nettest.IPv4(nettest.Addr("10.0.0.1"), nettest.Addr("10.0.0.2"),
		core.ProtocolSCTP, sctp)
	frame := netbuf.NewView(nettest.Eth(macA, macB, core.EtherTypeIPv4, ipv4))

	var chunkTypes []uint8
	dataFired := 0
	p := &Processor{Hooks: Hooks{
		SCTPChunk: func(ctx *Context) bool {
			chunkTypes = append(chunkTypes, ctx.SCTPChunk.Type())
			return true
		},
		SCTPData: func(ctx *Context) bool {
			dataFired++
			assert.True(t, ctx.SCTPData.IsS1AP())
			return true
		},
	}}
	require.NoError(t, p.ConsumeEth(frame, nil))
	assert.Equal(t, []uint8{core.SCTPChunkData}, chunkTypes)
	assert.Equal(t, 1, dataFired)
}

func TestPushIPv4Injection(t *testing.T) {
	ipv4 := nettest.IPv4(nettest.Addr("1.1.1.1"), nettest.Addr("2.2.2.2"),
		core.ProtocolUDP, nettest.UDP(1, 2, []byte("x")))

	fired := map[string]int{}
	p := &Processor{Hooks: Hooks{
		IPv4: func(ctx *Context) bool {
			fired["ipv4"]++
			assert.Nil(t, ctx.Eth)
			return true
		},
		Final: func(ctx *Context) { fired["final"]++ },
	}}

	// Final processing is anchored at Ethernet by default: injected
	// IPv4 does not fire it.
	require.NoError(t, p.PushIPv4(netbuf.NewView(ipv4), nil))
	assert.Equal(t, 1, fired["ipv4"])
	assert.Zero(t, fired["final"])

	// Anchored at IPv4, it does.
	p.Hooks.FinalOnIPv4 = true
	require.NoError(t, p.PushIPv4(netbuf.NewView(ipv4), nil))
	assert.Equal(t, 1, fired["final"])
}

func TestUserDataCarriedThrough(t *testing.T) {
	ud := &core.UserData{Int: 7}
	p := &Processor{Hooks: Hooks{
		UDP: func(ctx *Context) bool {
			assert.Same(t, ud, ctx.UserData)
			ctx.UserData.Int = 8
			return true
		},
	}}
	require.NoError(t, p.ConsumeEth(udpFrame([]byte("x")), ud))
	assert.Equal(t, 8, ud.Int)
}

func TestDecodeErrorSurfacesPerPacket(t *testing.T) {
	p := &Processor{}
	err := p.ConsumeEth(netbuf.NewView(make([]byte, 4)), nil)
	assert.Error(t, err)

	// A truncated IPv4 payload inside a valid Ethernet frame.
	frame := nettest.Eth(macA, macB, core.EtherTypeIPv4, make([]byte, 10))
	err = p.ConsumeEth(netbuf.NewView(frame), nil)
	assert.Error(t, err)
}
