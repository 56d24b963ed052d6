package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/epcnet/upf/internal/dump"
	"github.com/epcnet/upf/internal/netbuf"
	"github.com/epcnet/upf/internal/pcap"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <in.pcap>",
	Short: "Decode a capture and print one block per record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(args[0])
	},
}

func runDump(path string) error {
	reader, err := pcap.OpenFile(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	pool := netbuf.NewPool()
	buf, err := pool.Get()
	if err != nil {
		return err
	}
	defer buf.Release()

	n := 0
	for {
		frame, err := reader.ReadEth(buf.WritableView())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Warn("skipping record", "error", err)
			continue
		}
		n++
		fmt.Printf("record %d (%d bytes)\n%s\n", n, frame.Size(), dump.Frame(frame))
	}
	fmt.Printf("%d records\n", n)
	return nil
}
