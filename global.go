package malloc

import "unsafe"

// global is the process-wide allocator instance used by the
// package-level convenience functions below. The specification's
// reference design keeps a single global pool (see Design Notes,
// "Global mutable pool"); this mirrors the teacher allocator's
// package-level PageAllocator variable
// (github.com/achilleasa/gopher-os/kernel/mem/physical.PageAllocator)
// while keeping Allocator itself an explicit, independently
// constructible handle for callers that want more than one pool.
var global *Allocator

// Init constructs the process-wide allocator over region and installs
// it as the target of the package-level Allocate/Free/DeclareSizeClass/
// ReservePages/ReleasePages functions.
func Init(region []byte, opts ...Option) error {
	a, err := New(region, opts...)
	if err != nil {
		return err
	}
	global = a
	return nil
}

// DeclareSizeClass calls DeclareSizeClass on the global allocator.
func DeclareSizeClass(size uintptr) error {
	if global == nil {
		return ErrNotInitialized
	}
	return global.DeclareSizeClass(size)
}

// Allocate calls Allocate on the global allocator.
func Allocate(n uintptr) (unsafe.Pointer, error) {
	if global == nil {
		return nil, ErrNotInitialized
	}
	return global.Allocate(n)
}

// Free calls Free on the global allocator.
func Free(ptr unsafe.Pointer) error {
	if global == nil {
		return ErrNotInitialized
	}
	return global.Free(ptr)
}

// ReservePages calls ReservePages on the global allocator.
func ReservePages(n uint) (unsafe.Pointer, error) {
	if global == nil {
		return nil, ErrNotInitialized
	}
	return global.ReservePages(n)
}

// ReleasePages calls ReleasePages on the global allocator.
func ReleasePages(ptr unsafe.Pointer, n uint) error {
	if global == nil {
		return ErrNotInitialized
	}
	return global.ReleasePages(ptr, n)
}
