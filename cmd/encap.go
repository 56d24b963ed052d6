package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/epcnet/upf/internal/encap"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/pcap"
	"github.com/epcnet/upf/internal/proc"
	"github.com/epcnet/upf/internal/router"
	"github.com/epcnet/upf/internal/s1ap"
)

var encapCmd = &cobra.Command{
	Use:   "encap <in.pcap> <gtp-out.pcap> <other-out.pcap>",
	Short: "Re-encapsulate known-UE GTPv1-U traffic from a capture",
	Long: `Reads a capture of eNodeB/EPC traffic, learns UEs from the S1-AP
exchanges in it, decapsulates GTPv1-U payloads of known UEs and writes
them re-encapsulated to the GTP output; every other IPv4 packet goes to
the other output unchanged. Non-IPv4 records are skipped.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEncap(args[0], args[1], args[2])
	},
}

func runEncap(inPath, gtpPath, otherPath string) error {
	reader, err := pcap.OpenFile(inPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	gtpOut, err := pcap.CreateIPv4File(gtpPath)
	if err != nil {
		return err
	}
	defer gtpOut.Close()

	otherOut, err := pcap.CreateIPv4File(otherPath)
	if err != nil {
		return err
	}
	defer otherOut.Close()

	pool := netbuf.NewPool()
	readBuf, err := pool.Get()
	if err != nil {
		return err
	}
	defer readBuf.Release()
	encapBuf, err := pool.Get()
	if err != nil {
		return err
	}
	defer encapBuf.Release()

	upf := router.New(s1ap.ProjectionCodec{})
	var idents encap.IdentificationSource
	sink, err := router.NewEncapSink(gtpOut, encapBuf.WritableView(), upf, &idents)
	if err != nil {
		return err
	}
	sink.EnableUDPChecksum(cfg.Router.UDPChecksum)

	// Decapsulate GTPv1-U payloads of known UEs and re-encapsulate
	// them towards the proper endpoint.
	upf.OnGTPv1UIPv4(func(ctx *proc.Context) bool {
		inner := ctx.GTPv1U.Data()
		known, err := upf.IsIPv4TrafficOfKnownUE(inner)
		if err != nil {
			slog.Warn("undecodable GTP payload", "error", err)
			return true
		}
		if !known {
			return true
		}
		if err := sink.ConsumeIPv4(inner, ctx.UserData); err != nil {
			slog.Warn("encapsulation failed", "error", err)
		}
		return false
	})

	// Everything that survives the cascade is forwarded as-is.
	upf.OnFinalProcess(func(ctx *proc.Context) {
		if ctx.IPv4 == nil {
			return
		}
		if err := otherOut.ConsumeIPv4(ctx.IPv4.Packet(), ctx.UserData); err != nil {
			slog.Warn("writing record failed", "error", err)
		}
	})

	upf.BeforeUEMapUpsert = func(entry *router.UEMapEntry) bool {
		slog.Info("new UE",
			"ue", entry.UEAddr,
			"enb", entry.Tunnel.ENB.Addr, "enb_teid", entry.Tunnel.ENB.TEID,
			"epc", entry.Tunnel.EPC.Addr, "epc_teid", entry.Tunnel.EPC.TEID)
		return true
	}

	for {
		packet, err := reader.ReadIPv4(readBuf.WritableView())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn("skipping record", "error", err)
			continue
		}
		if packet.Empty() {
			continue
		}
		if err := upf.ConsumeIPv4(packet, nil); err != nil {
			slog.Warn("skipping packet", "error", err)
		}
	}

	fmt.Printf("UE map (%d entries)\n", len(upf.UEMap()))
	for ue, tunnel := range upf.UEMap() {
		fmt.Printf("  %s -> eNB %s/0x%08x <-> EPC %s/0x%08x\n",
			ue, tunnel.ENB.Addr, tunnel.ENB.TEID, tunnel.EPC.Addr, tunnel.EPC.TEID)
	}
	fmt.Printf("pool capacity %d, free %d\n", pool.Capacity(), pool.Free())
	return nil
}
