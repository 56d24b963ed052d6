//go:build linux

package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/epcnet/upf/internal/config"
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/decode"
	"github.com/epcnet/upf/internal/encap"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/proc"
	"github.com/epcnet/upf/internal/rawsock"
	"github.com/epcnet/upf/internal/router"
	"github.com/epcnet/upf/internal/s1ap"
)

var liveOutInterface string

var liveCmd = &cobra.Command{
	Use:   "live <interface>",
	Short: "Route live traffic between an eNodeB-facing interface and an output interface",
	Long: `Captures on the given interface, learns UEs from the S1-AP traffic,
decapsulates known-UE GTPv1-U payloads and plain-forwards SCTP traffic
and the traffic allowed by the matching rules to the output interface;
other traffic is dropped. Plain IPv4 traffic of known UEs coming back is
re-encapsulated into its GTPv1-U tunnel. Requires CAP_NET_RAW.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(args[0], liveOutInterface)
	},
}

func init() {
	liveCmd.Flags().StringVarP(&liveOutInterface, "out", "o", "",
		"output interface (default: same as capture interface)")
	rootCmd.AddCommand(liveCmd)
}

func runLive(inName, outName string) error {
	if outName == "" {
		outName = inName
	}

	inIndex, err := rawsock.IfIndexByName(inName)
	if err != nil {
		return err
	}
	outIndex, err := rawsock.IfIndexByName(outName)
	if err != nil {
		return err
	}

	in, err := rawsock.Open(inIndex, cfg.Capture.Promiscuous)
	if err != nil {
		return err
	}
	defer in.Close()

	if cfg.Capture.KernelFilter {
		prog, err := rawsock.MobileTrafficFilter(cfg.Capture.SnapLen)
		if err != nil {
			return err
		}
		if err := in.SetFilter(prog); err != nil {
			return err
		}
	}

	out, err := rawsock.Open(outIndex, false)
	if err != nil {
		return err
	}
	defer out.Close()

	mtu, err := in.MTU()
	if err != nil {
		return err
	}
	slog.Info("capture started", "interface", inName, "out", outName, "mtu", mtu)

	pool := netbuf.NewPool()
	readBuf, err := pool.Get()
	if err != nil {
		return err
	}
	defer readBuf.Release()
	gtpBuf, err := pool.Get()
	if err != nil {
		return err
	}
	defer gtpBuf.Release()
	ethBuf, err := pool.Get()
	if err != nil {
		return err
	}
	defer ethBuf.Release()

	matcher, err := loadMatcher(cfg.Router.RulesFile)
	if err != nil {
		return err
	}

	upf := router.New(s1ap.ProjectionCodec{})
	var idents encap.IdentificationSource

	// Decapsulated and plain-forwarded traffic leaves as Ethernet
	// frames with fake MAC addresses; the next hop routes on L3.
	ethOut, err := encap.NewIPv4EncapSink(rawSender{out}, ethBuf.WritableView())
	if err != nil {
		return err
	}

	// Known-UE IPv4 traffic gets re-encapsulated into its tunnel and
	// leaves as GTP-in-Ethernet.
	gtpSink, err := router.NewEncapSink(ethOut, gtpBuf.WritableView(), upf, &idents)
	if err != nil {
		return err
	}
	gtpSink.EnableUDPChecksum(cfg.Router.UDPChecksum)

	upf.OnGTPv1UIPv4(func(ctx *proc.Context) bool {
		inner := ctx.GTPv1U.Data()
		known, err := upf.IsIPv4TrafficOfKnownUE(inner)
		if err != nil || !known {
			return true
		}
		if err := ethOut.ConsumeIPv4(inner, ctx.UserData); err != nil {
			slog.Warn("forwarding decapsulated packet failed", "error", err)
		}
		return false
	})

	upf.OnIPv4PostProcess(func(ctx *proc.Context) bool {
		known, err := upf.IsIPv4TrafficOfKnownUE(ctx.IPv4.Packet())
		if err == nil && known {
			if err := gtpSink.ConsumeIPv4(ctx.IPv4.Packet(), ctx.UserData); err != nil {
				slog.Warn("encapsulation failed", "error", err)
			}
			return false
		}
		// Unknown traffic is forwarded only when a rule allows it.
		if matcher.Match(ctx.IPv4) {
			return true
		}
		return false
	})

	upf.OnFinalProcess(func(ctx *proc.Context) {
		if ctx.IPv4 == nil {
			return
		}
		if err := ethOut.ConsumeIPv4(ctx.IPv4.Packet(), ctx.UserData); err != nil {
			slog.Warn("forwarding failed", "error", err)
		}
	})

	upf.BeforeUEMapUpsert = func(entry *router.UEMapEntry) bool {
		slog.Info("new UE", "ue", entry.UEAddr)
		return true
	}

	for {
		frame, err := in.Receive(readBuf.WritableView())
		if err != nil {
			slog.Warn("receive failed", "error", err)
			continue
		}
		eth, err := decode.NewEthFrame(frame)
		if err != nil || !eth.IsIPv4() {
			continue
		}
		if err := upf.ConsumeIPv4(eth.Data(), nil); err != nil {
			slog.Warn("skipping packet", "error", err)
		}
	}
}

func loadMatcher(path string) (*router.RuleMatcher, error) {
	matcher := &router.RuleMatcher{}
	if path == "" {
		return matcher, nil
	}
	texts, err := config.LoadRules(path)
	if err != nil {
		return nil, err
	}
	for _, text := range texts {
		rule, err := router.ParseMatchingRule(text)
		if err != nil {
			return nil, err
		}
		matcher.AddRule(rule, router.EndPosition)
	}
	return matcher, nil
}

// rawSender adapts a raw socket to the EthSink interface.
type rawSender struct {
	sock *rawsock.Socket
}

func (s rawSender) ConsumeEth(frame netbuf.View, _ *core.UserData) error {
	if frame.Empty() {
		return nil
	}
	return s.sock.Send(frame)
}
