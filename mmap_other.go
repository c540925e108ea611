//go:build !unix

package malloc

import (
	"unsafe"

	"github.com/cyhwang1997/malloc/internal/mem"
)

// NewMapped constructs an Allocator over a heap-allocated, best-effort
// page-aligned region of at least size bytes on platforms without the
// unix mmap family. Go's allocator gives no alignment guarantee, so
// this over-allocates by one page and slices into the first aligned
// offset; the unmap function is a no-op and the backing array is left
// for the garbage collector once the Allocator is dropped.
func NewMapped(size int, opts ...Option) (alloc *Allocator, unmap func() error, err error) {
	pages := (size + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	raw := make([]byte, pages*PageSize+PageSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := mem.Align(base, PageSize)
	region := raw[aligned-base : aligned-base+uintptr(pages*PageSize)]

	alloc, err = New(region, opts...)
	if err != nil {
		return nil, nil, err
	}

	return alloc, func() error { return nil }, nil
}
