package netbuf

import (
	"github.com/epcnet/upf/internal/core"
)

// MaxFrameSize is the backing-buffer size for one pool slot: enough
// for a worst-case frame (64 KiB IPv4 packet plus link-layer and
// encapsulation headers).
const MaxFrameSize = 65600

// DefaultPoolCapacity is the slot count of a Pool created with NewPool.
const DefaultPoolCapacity = 1024

// Buffer is a leased pool slot. Views derived from it share its scope:
// the backing bytes stay valid until Release is called.
type Buffer struct {
	pool *Pool
	slot int
	data []byte
}

// WritableView returns a writable view spanning the whole backing
// buffer.
func (b *Buffer) WritableView() WritableView {
	return NewWritableView(b.data)
}

// Release returns the slot to the pool. The buffer and every view
// derived from it must not be used afterwards. Releasing twice is a
// no-op.
func (b *Buffer) Release() {
	if b.pool == nil {
		return
	}
	p := b.pool
	b.pool = nil
	p.put(b.slot)
}

// Pool is a fixed-capacity pool of MTU-sized packet buffers. It is not
// safe for concurrent use without external synchronization.
type Pool struct {
	slots [][]byte
	free  []int
}

// NewPool creates a pool with the default capacity and slot size.
func NewPool() *Pool {
	return NewPoolSize(DefaultPoolCapacity, MaxFrameSize)
}

// NewPoolSize creates a pool with the given slot count and slot size.
func NewPoolSize(capacity, slotSize int) *Pool {
	p := &Pool{
		slots: make([][]byte, capacity),
		free:  make([]int, capacity),
	}
	for i := range p.slots {
		p.slots[i] = make([]byte, slotSize)
		p.free[i] = capacity - 1 - i
	}
	return p
}

// Capacity returns the total slot count.
func (p *Pool) Capacity() int { return len(p.slots) }

// Free returns the number of slots currently available.
func (p *Pool) Free() int { return len(p.free) }

// Get leases a free slot. It fails with a CapacityExceededError when
// every slot is busy.
func (p *Pool) Get() (*Buffer, error) {
	if len(p.free) == 0 {
		return nil, &core.CapacityExceededError{
			Needed:    1,
			Available: 0,
			Where:     "netbuf.Pool.Get",
		}
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return &Buffer{pool: p, slot: slot, data: p.slots[slot]}, nil
}

func (p *Pool) put(slot int) {
	p.free = append(p.free, slot)
}
