// Package malloc implements a two-tier user-space memory allocator over a
// caller-supplied contiguous byte region: a page allocator (internal/page)
// that carves the region into fixed-size pages and reserves runs of them
// via a bitmap, and a segregated-fits object allocator (internal/heap)
// layered on top that serves variable-sized requests from per-size-class
// arenas.
//
// The design is ported from original_source/cy_malloc.c, a Pintos-derived
// C allocator, in the structural style of
// github.com/achilleasa/gopher-os/kernel/mem/physical: a bitmap-backed
// pool placed at the front of the managed region, descriptors with
// free lists threaded through arenas, and a magic-cookie sentinel as the
// allocator's only corruption check.
//
// Allocator is not safe for concurrent use. The reference design has no
// internal synchronization (see the specification's Concurrency &
// Resource Model); a caller that needs thread safety must wrap an
// Allocator in its own mutex.
package malloc

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyhwang1997/malloc/internal/heap"
	"github.com/cyhwang1997/malloc/internal/mem"
	"github.com/cyhwang1997/malloc/internal/page"
)

// Allocator is a single-owner handle over one managed byte region. Its
// zero value is not usable; construct one with New or NewFromAddr.
type Allocator struct {
	pages *page.Pool
	heap  *heap.Heap
	log   *logrus.Logger
}

// New carves region into an allocator: region must start on a page
// boundary (mem.PageSize, 4096 bytes) and be long enough to hold its
// own occupancy bitmap plus at least one manageable page.
func New(region []byte, opts ...Option) (*Allocator, error) {
	cfg := newConfig(opts)

	pages, err := page.Init(region, cfg.log)
	if err != nil {
		return nil, errors.Wrap(err, "malloc: initializing page pool")
	}

	h := heap.New(pages, cfg.log)
	a := &Allocator{pages: pages, heap: h, log: cfg.log}

	for _, size := range cfg.sizeClasses {
		if err := h.DeclareSizeClass(size); err != nil {
			return nil, errors.Wrapf(err, "malloc: declaring size class %d", size)
		}
	}

	return a, nil
}

// NewFromAddr is New expressed in the specification's native terms: two
// integer byte addresses delimiting a page-aligned region. start must
// be strictly less than end.
func NewFromAddr(start, end uintptr, opts ...Option) (*Allocator, error) {
	if start >= end {
		return nil, ErrInvalidRegion
	}

	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), int(end-start))
	return New(region, opts...)
}

// DeclareSizeClass adds a supplementary, exact-match size class. size
// must be greater than zero and smaller than half a page, and must not
// duplicate an existing class (primary or supplementary).
func (a *Allocator) DeclareSizeClass(size uintptr) error {
	return a.heap.DeclareSizeClass(size)
}

// Allocate obtains a pointer to at least n bytes, or a nil pointer (with
// a nil error) if n is zero. It returns mem.ErrOutOfMemory if the
// region has no room left for the request.
func (a *Allocator) Allocate(n uintptr) (unsafe.Pointer, error) {
	return a.heap.Allocate(n)
}

// AllocateBytes is Allocate expressed as a []byte for callers that want
// to read and write through the slice directly. It returns a nil slice
// for n == 0.
func (a *Allocator) AllocateBytes(n int) ([]byte, error) {
	ptr, err := a.Allocate(uintptr(n))
	if err != nil || ptr == nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

// Free returns a block previously obtained from Allocate. Freeing a nil
// pointer is reported as an error rather than causing a panic.
func (a *Allocator) Free(ptr unsafe.Pointer) error {
	return a.heap.Free(ptr)
}

// FreeBytes is Free for a slice obtained from AllocateBytes.
func (a *Allocator) FreeBytes(b []byte) error {
	if len(b) == 0 {
		return ErrNilPointer
	}
	return a.Free(unsafe.Pointer(&b[0]))
}

// ReservePages obtains n contiguous raw pages, bypassing the object
// allocator entirely. It returns mem.ErrOutOfMemory if no such run is
// free.
func (a *Allocator) ReservePages(n uint) (unsafe.Pointer, error) {
	addr, err := a.pages.Reserve(n)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(addr), nil
}

// ReleasePages returns n contiguous raw pages obtained from
// ReservePages. ptr must be page-aligned and the pages must currently
// be reserved.
func (a *Allocator) ReleasePages(ptr unsafe.Pointer, n uint) error {
	return a.pages.Release(uintptr(ptr), n)
}

// PageCount returns the total number of pages the allocator manages,
// including those currently backing object-allocator arenas.
func (a *Allocator) PageCount() uint {
	return a.pages.PageCount()
}

// ErrNilPointer is returned by Free and FreeBytes for a nil pointer or
// empty slice.
var ErrNilPointer = heap.ErrNilPointer

// PageSize is the page granularity every Allocator manages at.
const PageSize = mem.PageSize
