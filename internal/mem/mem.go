// Package mem defines the page-granularity constants and address helpers
// shared by the bitmap, page and heap allocators.
package mem

import "github.com/pkg/errors"

// PageSize is the size, in bytes, of a single page managed by the
// allocator. It must be a power of two.
const PageSize = 4096

// PageShift is log2(PageSize), used to convert between addresses and
// page indices with a shift instead of a division.
const PageShift = 12

// ErrOutOfMemory is returned by the page allocator when a reservation
// request cannot be satisfied from the pool's remaining free pages.
var ErrOutOfMemory = errors.New("mem: out of memory")

// Align rounds addr up to the next multiple of alignment, which must be
// a power of two.
func Align(addr, alignment uintptr) uintptr {
	return (addr + alignment - 1) &^ (alignment - 1)
}

// PageAligned reports whether addr falls on a page boundary.
func PageAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

// PagesFor returns the number of pages required to hold n bytes.
func PagesFor(n uintptr) uintptr {
	return (n + PageSize - 1) >> PageShift
}
