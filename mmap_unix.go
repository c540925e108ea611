//go:build unix

package malloc

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// NewMapped constructs an Allocator over a freshly mmap'd, anonymous,
// page-aligned region of at least size bytes (rounded up to a whole
// number of pages) and returns it alongside an Unmap function the
// caller must invoke once the allocator is no longer needed.
//
// This is the idiomatic way to obtain a genuinely page-aligned region
// in Go — see the unix.Mmap pattern used by this package's sibling
// allocator references (e.g. cznic/memory, and the ebpf perf ring
// buffer) — rather than relying on the alignment of a make([]byte)
// slice, which the runtime gives no guarantee about.
func NewMapped(size int, opts ...Option) (alloc *Allocator, unmap func() error, err error) {
	pages := (size + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}

	region, mmapErr := unix.Mmap(-1, 0, pages*PageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if mmapErr != nil {
		return nil, nil, errors.Wrap(mmapErr, "malloc: mmap anonymous region")
	}

	alloc, err = New(region, opts...)
	if err != nil {
		_ = unix.Munmap(region)
		return nil, nil, err
	}

	return alloc, func() error { return unix.Munmap(region) }, nil
}
