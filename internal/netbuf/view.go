// Package netbuf implements byte-range views over shared packet
// buffers, the fixed-capacity packet-buffer pool, and the sink
// interfaces that move packet views between components.
package netbuf

import (
	"encoding/binary"
	"net/netip"

	"github.com/epcnet/upf/internal/core"
)

// View is a read-only window over a backing buffer. Views are
// value-like and cheap to copy; they never extend past the end of the
// backing buffer. A zero View is empty.
type View struct {
	data []byte
}

// NewView wraps an existing byte slice in a read-only View.
func NewView(data []byte) View { return View{data: data} }

// Size returns the number of bytes visible through the view.
func (v View) Size() int { return len(v.data) }

// Empty reports whether the view has no bytes.
func (v View) Empty() bool { return len(v.data) == 0 }

// Sub returns a narrower view starting at offset and running to the
// end of this view.
func (v View) Sub(offset int) (View, error) {
	if offset < 0 || offset > len(v.data) {
		return View{}, &core.OutOfBoundsError{Offset: offset, Length: 0, Size: len(v.data)}
	}
	return View{data: v.data[offset:]}, nil
}

// SubLen returns a narrower view of exactly length bytes starting at
// offset.
func (v View) SubLen(offset, length int) (View, error) {
	if err := v.check(offset, length); err != nil {
		return View{}, err
	}
	return View{data: v.data[offset : offset+length]}, nil
}

func (v View) check(offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(v.data) {
		return &core.OutOfBoundsError{Offset: offset, Length: length, Size: len(v.data)}
	}
	return nil
}

// Uint8At reads the byte at offset.
func (v View) Uint8At(offset int) (uint8, error) {
	if err := v.check(offset, 1); err != nil {
		return 0, err
	}
	return v.data[offset], nil
}

// Uint16At reads a big-endian 16-bit value at offset.
func (v View) Uint16At(offset int) (uint16, error) {
	if err := v.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v.data[offset:]), nil
}

// Uint32At reads a big-endian 32-bit value at offset.
func (v View) Uint32At(offset int) (uint32, error) {
	if err := v.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v.data[offset:]), nil
}

// AddrAt reads an IPv4 address at offset.
func (v View) AddrAt(offset int) (netip.Addr, error) {
	if err := v.check(offset, 4); err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte(v.data[offset : offset+4])), nil
}

// MACAt reads a MAC address at offset.
func (v View) MACAt(offset int) (core.MACAddress, error) {
	if err := v.check(offset, 6); err != nil {
		return core.MACAddress{}, err
	}
	return core.MACAddress(v.data[offset : offset+6]), nil
}

// Unchecked accessors for hot paths where a decoder has already proven
// the range valid on construction. Out-of-range access panics.

func (v View) Uint8(offset int) uint8 { return v.data[offset] }

func (v View) Uint16(offset int) uint16 { return binary.BigEndian.Uint16(v.data[offset:]) }

func (v View) Uint32(offset int) uint32 { return binary.BigEndian.Uint32(v.data[offset:]) }

func (v View) Addr(offset int) netip.Addr {
	return netip.AddrFrom4([4]byte(v.data[offset : offset+4]))
}

func (v View) MAC(offset int) core.MACAddress {
	return core.MACAddress(v.data[offset : offset+6])
}

// CopyTo copies length bytes starting at offset into dst.
func (v View) CopyTo(offset, length int, dst []byte) error {
	if err := v.check(offset, length); err != nil {
		return err
	}
	if len(dst) < length {
		return &core.OutOfBoundsError{Offset: 0, Length: length, Size: len(dst)}
	}
	copy(dst, v.data[offset:offset+length])
	return nil
}

// Bytes exposes the raw window. The caller must not mutate it.
func (v View) Bytes() []byte { return v.data }

// Sum16 computes the 16-bit one's-complement partial sum over the
// view's bytes, iterating as big-endian words. An odd trailing byte is
// zero-padded on the right, as checksum arithmetic requires.
func (v View) Sum16() uint32 {
	var sum uint32
	i := 0
	for ; i+1 < len(v.data); i += 2 {
		sum += uint32(v.data[i])<<8 | uint32(v.data[i+1])
	}
	if i < len(v.data) {
		sum += uint32(v.data[i]) << 8
	}
	return sum
}

// WritableView is a View that may also mutate bytes inside its range.
type WritableView struct {
	View
}

// NewWritableView wraps an existing byte slice in a WritableView.
func NewWritableView(data []byte) WritableView {
	return WritableView{View: View{data: data}}
}

// WritableSub returns a narrower writable view from offset to the end.
func (v WritableView) WritableSub(offset int) (WritableView, error) {
	sub, err := v.Sub(offset)
	if err != nil {
		return WritableView{}, err
	}
	return WritableView{View: sub}, nil
}

// WritableSubLen returns a narrower writable view of exactly length
// bytes at offset.
func (v WritableView) WritableSubLen(offset, length int) (WritableView, error) {
	sub, err := v.SubLen(offset, length)
	if err != nil {
		return WritableView{}, err
	}
	return WritableView{View: sub}, nil
}

// ShrinkTo narrows the view in place. The new size must not exceed the
// current one.
func (v *WritableView) ShrinkTo(size int) error {
	if size < 0 || size > len(v.data) {
		return &core.OutOfBoundsError{Offset: 0, Length: size, Size: len(v.data)}
	}
	v.data = v.data[:size]
	return nil
}

// SetUint8At writes the byte at offset.
func (v WritableView) SetUint8At(offset int, value uint8) error {
	if err := v.check(offset, 1); err != nil {
		return err
	}
	v.data[offset] = value
	return nil
}

// SetUint16At writes a big-endian 16-bit value at offset.
func (v WritableView) SetUint16At(offset int, value uint16) error {
	if err := v.check(offset, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(v.data[offset:], value)
	return nil
}

// SetUint32At writes a big-endian 32-bit value at offset.
func (v WritableView) SetUint32At(offset int, value uint32) error {
	if err := v.check(offset, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(v.data[offset:], value)
	return nil
}

// SetAddrAt writes an IPv4 address at offset.
func (v WritableView) SetAddrAt(offset int, addr netip.Addr) error {
	if err := v.check(offset, 4); err != nil {
		return err
	}
	b := addr.As4()
	copy(v.data[offset:], b[:])
	return nil
}

// SetMACAt writes a MAC address at offset.
func (v WritableView) SetMACAt(offset int, mac core.MACAddress) error {
	if err := v.check(offset, 6); err != nil {
		return err
	}
	copy(v.data[offset:], mac[:])
	return nil
}

// Unchecked setters, for builders that validated their buffer up front.

func (v WritableView) SetUint8(offset int, value uint8) { v.data[offset] = value }

func (v WritableView) SetUint16(offset int, value uint16) {
	binary.BigEndian.PutUint16(v.data[offset:], value)
}

func (v WritableView) SetUint32(offset int, value uint32) {
	binary.BigEndian.PutUint32(v.data[offset:], value)
}

func (v WritableView) SetAddr(offset int, addr netip.Addr) {
	b := addr.As4()
	copy(v.data[offset:], b[:])
}

func (v WritableView) SetMAC(offset int, mac core.MACAddress) {
	copy(v.data[offset:], mac[:])
}

// CopyFrom copies src into the view starting at offset.
func (v WritableView) CopyFrom(offset int, src View) error {
	if err := v.check(offset, src.Size()); err != nil {
		return err
	}
	copy(v.data[offset:], src.data)
	return nil
}

// WritableBytes exposes the raw writable window.
func (v WritableView) WritableBytes() []byte { return v.data }
