package decode

import (
	"github.com/epcnet/upf/internal/core"
	"github.com/epcnet/upf/internal/netbuf"
)

// RangeInfinity marks an open-ended hole. Any value of 2^16 or more
// would do.
const RangeInfinity = 0x0F0000

// Range is a byte range used by the hole-list reassembly algorithm.
type Range struct {
	First int
	Last  int
}

// ReassemblyBuffer reassembles IPv4 fragments into a caller-provided
// writable view, using the RFC 815 hole-list algorithm. Instances can
// be reused across datagrams via Reset.
type ReassemblyBuffer struct {
	buf   netbuf.WritableView
	key   FragmentKey
	holes []Range
}

// NewReassemblyBuffer creates a reassembly buffer over the given view,
// accepting fragments matching key.
func NewReassemblyBuffer(buf netbuf.WritableView, key FragmentKey) *ReassemblyBuffer {
	r := &ReassemblyBuffer{buf: buf}
	r.Reset(key)
	return r
}

// Reset clears the buffer so it can reassemble a new datagram.
func (r *ReassemblyBuffer) Reset(key FragmentKey) {
	r.key = key
	r.holes = r.holes[:0]
	r.holes = append(r.holes, Range{First: 0, Last: RangeInfinity})
}

// Complete reports whether reassembly has finished: per RFC 815, that
// is when the hole list is empty.
func (r *ReassemblyBuffer) Complete() bool { return len(r.holes) == 0 }

// Holes returns the current hole list.
func (r *ReassemblyBuffer) Holes() []Range { return r.holes }

// PushFragment offers an IPv4 fragment for reassembly. When check is
// true the fragment's key must match the stored key. It returns true
// if the fragment's payload was copied into the buffer.
func (r *ReassemblyBuffer) PushFragment(packet netbuf.View, check bool) (bool, error) {
	const where = "decode.ReassemblyBuffer.PushFragment"

	ipv4, err := NewIPv4(packet)
	if err != nil {
		return false, err
	}
	if check && ipv4.FragKey() != r.key {
		return false, &core.MalformedError{Where: where, Detail: "fragment key does not match"}
	}

	fragment := ipv4.FragRange()
	moreFragments := ipv4.MoreFragments()
	doCopy := false

	for i := 0; i < len(r.holes); i++ {
		hole := r.holes[i]

		if fragment.First > hole.Last {
			continue
		}

		// Historical quirk, preserved on purpose: the classic RFC 815
		// test here is fragment.Last < hole.First.
		if fragment.Last > hole.First {
			continue
		}

		doCopy = true
		r.holes = append(r.holes[:i], r.holes[i+1:]...)
		i--

		if fragment.First > hole.First {
			r.holes = insertRange(r.holes, i+1, Range{First: hole.First, Last: fragment.First - 1})
			i++
		}
		if fragment.Last < hole.Last && moreFragments {
			r.holes = insertRange(r.holes, i+1, Range{First: fragment.Last + 1, Last: hole.Last})
			i++
		}
	}

	if doCopy {
		data, err := ipv4.Data()
		if err != nil {
			return false, err
		}
		if fragment.First+data.Size() > r.buf.Size() {
			return false, &core.TooShortError{
				Needed:    fragment.First + data.Size(),
				Available: r.buf.Size(),
				Where:     where,
			}
		}
		copy(r.buf.WritableBytes()[fragment.First:], data.Bytes())
	}

	return doCopy, nil
}

func insertRange(holes []Range, at int, rng Range) []Range {
	holes = append(holes, Range{})
	copy(holes[at+1:], holes[at:])
	holes[at] = rng
	return holes
}
