//go:build linux

package rawsock

import (
	"os"
	"time"

	"github.com/google/gopacket/afpacket"

	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

// RingConfig tunes the TPACKET capture ring.
type RingConfig struct {
	Device       string
	SnapLen      int
	BufferSizeMB int
	TimeoutMs    int
}

// Ring is a TPACKET v3 capture source, for rates where the plain raw
// socket starts dropping.
type Ring struct {
	tp *afpacket.TPacket
}

// OpenRing opens a capture ring on the given device.
func OpenRing(cfg RingConfig) (*Ring, error) {
	const where = "rawsock.OpenRing"

	if cfg.SnapLen == 0 {
		cfg.SnapLen = netbuf.MaxFrameSize
	}
	if cfg.BufferSizeMB == 0 {
		cfg.BufferSizeMB = 8
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = 100
	}

	frameSize, blockSize, numBlocks, err := ringSizes(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, &core.IOError{Where: where, Cause: err}
	}
	return &Ring{tp: tp}, nil
}

// ringSizes derives TPACKET geometry from a target buffer size: frames
// big enough for the snap length, page-aligned blocks of 128 frames.
func ringSizes(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const where = "rawsock.ringSizes"

	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}

	blockSize = frameSize * 128
	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, &core.InvalidArgumentError{
			Where:  where,
			Detail: "buffer size too small for one block",
		}
	}
	return frameSize, blockSize, numBlocks, nil
}

// Receive reads one frame into buf and returns a view over it.
func (r *Ring) Receive(buf netbuf.WritableView) (netbuf.View, error) {
	const where = "rawsock.Ring.Receive"
	data, _, err := r.tp.ZeroCopyReadPacketData()
	if err != nil {
		return netbuf.View{}, &core.IOError{Where: where, Cause: err}
	}
	if len(data) > buf.Size() {
		return netbuf.View{}, &core.CapacityExceededError{Needed: len(data), Available: buf.Size(), Where: where}
	}
	copy(buf.WritableBytes(), data)
	return buf.SubLen(0, len(data))
}

// Close releases the ring.
func (r *Ring) Close() { r.tp.Close() }
