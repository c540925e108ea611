// Package bitmap implements a fixed-size bit array stored inline in a
// caller-supplied buffer. It is the free-page tracking structure used by
// the page allocator: bit i is set iff page i is currently reserved.
package bitmap

import (
	"unsafe"

	"github.com/pkg/errors"
)

// elemBits is the width, in bits, of one backing word.
const elemBits = 64

// NotFound is returned by Scan and ScanAndFlip when no run of the
// requested length and value exists in range.
const NotFound = ^uint(0)

// ErrBufferTooSmall is returned by New when the supplied buffer cannot
// hold a bitmap of the requested bit count.
var ErrBufferTooSmall = errors.New("bitmap: buffer too small")

// Bitmap is a bit array overlaid on a caller-owned buffer: the header
// occupies the front of the buffer and the backing words follow it
// immediately, little-endian within each word (bit 0 of word 0 is bit 0
// of the map).
type Bitmap struct {
	bitCnt uint
	bits   []uint64
}

// BufSize returns the number of bytes a buffer must have to back a
// bitmap of bitCnt bits, including the header.
func BufSize(bitCnt uint) uintptr {
	return unsafe.Sizeof(Bitmap{}) + uintptr(elemCnt(bitCnt))*unsafe.Sizeof(uint64(0))
}

// New constructs a bitmap of bitCnt bits in place at the front of buf
// and zeroes every bit. buf must be at least BufSize(bitCnt) bytes.
func New(bitCnt uint, buf []byte) (*Bitmap, error) {
	if uintptr(len(buf)) < BufSize(bitCnt) {
		return nil, ErrBufferTooSmall
	}

	b := (*Bitmap)(unsafe.Pointer(&buf[0]))
	b.bitCnt = bitCnt
	wordsAt := uintptr(unsafe.Pointer(&buf[0])) + unsafe.Sizeof(Bitmap{})
	b.bits = unsafe.Slice((*uint64)(unsafe.Pointer(wordsAt)), elemCnt(bitCnt))
	b.SetAll(false)
	return b, nil
}

// Len returns the number of bits in b.
func (b *Bitmap) Len() uint {
	return b.bitCnt
}

// elemCnt returns the number of uint64 words required for bitCnt bits.
func elemCnt(bitCnt uint) uint {
	return (bitCnt + elemBits - 1) / elemBits
}

func elemIdx(bitIdx uint) uint {
	return bitIdx / elemBits
}

func bitMask(bitIdx uint) uint64 {
	return uint64(1) << (bitIdx % elemBits)
}

// Mark atomically (with respect to the caller) sets the bit numbered
// bitIdx to true. It panics if bitIdx is out of range.
func (b *Bitmap) Mark(bitIdx uint) {
	b.mustInRange(bitIdx)
	b.bits[elemIdx(bitIdx)] |= bitMask(bitIdx)
}

// Reset atomically sets the bit numbered bitIdx to false. It panics if
// bitIdx is out of range.
func (b *Bitmap) Reset(bitIdx uint) {
	b.mustInRange(bitIdx)
	b.bits[elemIdx(bitIdx)] &^= bitMask(bitIdx)
}

// Set assigns value to the bit numbered bitIdx. It panics if bitIdx is
// out of range.
func (b *Bitmap) Set(bitIdx uint, value bool) {
	if value {
		b.Mark(bitIdx)
	} else {
		b.Reset(bitIdx)
	}
}

// Test returns the value of the bit numbered bitIdx. It panics if
// bitIdx is out of range.
func (b *Bitmap) Test(bitIdx uint) bool {
	b.mustInRange(bitIdx)
	return b.bits[elemIdx(bitIdx)]&bitMask(bitIdx) != 0
}

// SetAll assigns value to every bit in b.
func (b *Bitmap) SetAll(value bool) {
	b.SetRange(0, b.bitCnt, value)
}

// SetRange assigns value to every bit in [start, start+cnt). It panics
// if the range falls outside the bitmap.
func (b *Bitmap) SetRange(start, cnt uint, value bool) {
	b.mustRangeInBounds(start, cnt)
	for i := uint(0); i < cnt; i++ {
		b.Set(start+i, value)
	}
}

// Contains returns true if any bit in [start, start+cnt) equals value.
// It panics if the range falls outside the bitmap.
func (b *Bitmap) Contains(start, cnt uint, value bool) bool {
	b.mustRangeInBounds(start, cnt)
	for i := uint(0); i < cnt; i++ {
		if b.Test(start+i) == value {
			return true
		}
	}
	return false
}

// All returns true if every bit in [start, start+cnt) is true. It
// panics if the range falls outside the bitmap.
func (b *Bitmap) All(start, cnt uint) bool {
	return !b.Contains(start, cnt, false)
}

// Scan returns the lowest index i >= start such that [i, i+cnt) are all
// equal to value, or NotFound if there is no such run.
func (b *Bitmap) Scan(start uint, cnt uint, value bool) uint {
	if start > b.bitCnt || cnt > b.bitCnt {
		return NotFound
	}

	last := b.bitCnt - cnt
	for i := start; i <= last; i++ {
		if !b.Contains(i, cnt, !value) {
			return i
		}
	}
	return NotFound
}

// ScanAndFlip finds the first run of cnt consecutive bits at or after
// start all equal to value, flips them to !value, and returns the
// index of the first bit in the run. If no such run exists it returns
// NotFound and mutates nothing. If cnt is 0 it returns 0 and mutates
// nothing.
func (b *Bitmap) ScanAndFlip(start, cnt uint, value bool) uint {
	if cnt == 0 {
		return 0
	}

	idx := b.Scan(start, cnt, value)
	if idx != NotFound {
		b.SetRange(idx, cnt, !value)
	}
	return idx
}

func (b *Bitmap) mustInRange(bitIdx uint) {
	if bitIdx >= b.bitCnt {
		panic("bitmap: index out of range")
	}
}

func (b *Bitmap) mustRangeInBounds(start, cnt uint) {
	if start > b.bitCnt || start+cnt > b.bitCnt {
		panic("bitmap: range out of bounds")
	}
}
