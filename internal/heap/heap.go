// Package heap implements the segregated-fits object allocator layered on
// top of a page allocator: each supported block size owns a free list of
// equal-sized blocks carved out of per-size arenas (single pages), and
// oversize requests bypass the free lists entirely and consume whole page
// runs directly.
//
// The data model — desc/arena/block, the ARENA_MAGIC sentinel, the
// big-block path sizing — is ported line-for-line from
// original_source/cy_malloc.c, the Pintos-derived allocator this
// specification was distilled from.
package heap

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyhwang1997/malloc/internal/list"
	"github.com/cyhwang1997/malloc/internal/mem"
	"github.com/cyhwang1997/malloc/internal/page"
)

// arenaMagic is written into every formatted arena header and checked on
// free; it is the allocator's only corruption detector. The value
// matches original_source/cy_malloc.c's ARENA_MAGIC so that a reader
// who knows the reference implementation recognizes it immediately.
const arenaMagic = 0x9a548eed

var (
	// ErrNilPointer is returned by Free when passed a nil pointer.
	ErrNilPointer = errors.New("heap: free of nil pointer")

	// ErrCorruptArena is returned by Free when the page enclosing the
	// freed pointer does not carry the arena magic cookie.
	ErrCorruptArena = errors.New("heap: freed pointer's arena has a bad magic cookie")

	// ErrMisalignedBlock is returned by Free when the freed pointer does
	// not sit on a block boundary within its arena.
	ErrMisalignedBlock = errors.New("heap: freed pointer is not block-aligned")

	// ErrZeroSize is returned by DeclareSizeClass for a size of 0.
	ErrZeroSize = errors.New("heap: size class must be greater than zero")

	// ErrSizeTooLarge is returned by DeclareSizeClass for a size that
	// would not fit the object allocator (>= half a page).
	ErrSizeTooLarge = errors.New("heap: size class must be smaller than half a page")

	// ErrDuplicateSizeClass is returned by DeclareSizeClass when the
	// exact size is already registered, primary or supplementary.
	ErrDuplicateSizeClass = errors.New("heap: size class already declared")
)

// arenaHeader sits at the start of every page the object allocator
// formats. desc is nil for a big-block arena. freeCnt counts free
// blocks for a normal arena, or the page count for a big block.
type arenaHeader struct {
	magic   uint32
	desc    *SizeClass
	freeCnt uint32
}

var arenaHeaderSize = unsafe.Sizeof(arenaHeader{})

// SizeClass (the specification's "descriptor") is immutable after
// construction except for its free list: blockSize, the number of
// blocks an arena of this class holds, and the free list of currently
// available blocks.
type SizeClass struct {
	blockSize      uintptr
	blocksPerArena uintptr
	freeList       list.List
}

// BlockSize returns the fixed size, in bytes, of every block this
// SizeClass hands out.
func (d *SizeClass) BlockSize() uintptr { return d.blockSize }

// BlocksPerArena returns the number of blocks a freshly formatted arena
// of this class holds.
func (d *SizeClass) BlocksPerArena() uintptr { return d.blocksPerArena }

// Heap is the object allocator: a fixed primary table of size classes
// doubling from 16 bytes up to (but not including) half a page, an
// optional supplementary table of exact-match sizes, and the page
// allocator that backs every arena.
type Heap struct {
	pages         *page.Pool
	primary       []*SizeClass
	supplementary []*SizeClass
	log           *logrus.Logger
}

// New builds the primary size-class table (16, 32, 64, ... < pageSize/2)
// over pages and returns a ready-to-use Heap.
func New(pages *page.Pool, log *logrus.Logger) *Heap {
	h := &Heap{pages: pages, log: log}
	for sz := uintptr(16); sz < mem.PageSize/2; sz *= 2 {
		h.primary = append(h.primary, newSizeClass(sz))
	}
	return h
}

func newSizeClass(blockSize uintptr) *SizeClass {
	d := &SizeClass{
		blockSize:      blockSize,
		blocksPerArena: (mem.PageSize - arenaHeaderSize) / blockSize,
	}
	d.freeList.Init()
	return d
}

// DeclareSizeClass registers a supplementary, exact-match size class.
// size must be greater than zero and smaller than half a page, and must
// not already appear in either table.
func (h *Heap) DeclareSizeClass(size uintptr) error {
	if size == 0 {
		return ErrZeroSize
	}
	if size >= mem.PageSize/2 {
		return ErrSizeTooLarge
	}
	if h.findExact(size) != nil {
		return ErrDuplicateSizeClass
	}

	d := newSizeClass(size)
	h.supplementary = append(h.supplementary, d)
	h.log.WithField("blockSize", size).Debug("heap: declared supplementary size class")
	return nil
}

func (h *Heap) findExact(size uintptr) *SizeClass {
	for _, d := range h.supplementary {
		if d.blockSize == size {
			return d
		}
	}
	for _, d := range h.primary {
		if d.blockSize == size {
			return d
		}
	}
	return nil
}

// selectDescriptor implements the lookup order from the specification:
// supplementary classes are consulted first for an exact match, in
// declaration order; failing that, the smallest primary class whose
// blockSize is at least n. It returns nil, sending the request to the
// big-block path, when no supplementary class matches exactly and n
// exceeds the largest primary class (pageSize/4, 1024 bytes).
func (h *Heap) selectDescriptor(n uintptr) *SizeClass {
	for _, d := range h.supplementary {
		if d.blockSize == n {
			return d
		}
	}
	for _, d := range h.primary {
		if d.blockSize >= n {
			return d
		}
	}
	return nil
}

// Allocate obtains a block of at least n bytes. It returns a nil
// pointer (no error) for n == 0, and mem.ErrOutOfMemory if the page
// allocator cannot back a new arena or big block.
func (h *Heap) Allocate(n uintptr) (unsafe.Pointer, error) {
	if n == 0 {
		return nil, nil
	}

	d := h.selectDescriptor(n)
	if d == nil {
		return h.allocateBig(n)
	}

	if d.freeList.Empty() {
		if err := h.growArena(d); err != nil {
			return nil, err
		}
	}

	elem := d.freeList.PopFront()
	blockAddr := uintptr(unsafe.Pointer(elem))
	a := arenaAt(pageFloor(blockAddr))
	a.freeCnt--
	return unsafe.Pointer(blockAddr), nil
}

// growArena reserves a fresh page, formats it as an arena bound to d,
// and threads its blocks onto d's free list in address order.
func (h *Heap) growArena(d *SizeClass) error {
	addr, err := h.pages.Reserve(1)
	if err != nil {
		return err
	}

	a := arenaAt(addr)
	a.magic = arenaMagic
	a.desc = d
	a.freeCnt = uint32(d.blocksPerArena)

	for i := uintptr(0); i < d.blocksPerArena; i++ {
		elem := (*list.Elem)(unsafe.Pointer(addr + arenaHeaderSize + i*d.blockSize))
		d.freeList.PushBack(elem)
	}

	h.log.WithFields(logrus.Fields{
		"blockSize": d.blockSize,
		"blocks":    d.blocksPerArena,
	}).Debug("heap: formatted arena")
	return nil
}

// allocateBig serves a request too large for any size class by
// reserving enough pages to hold an arena header plus n bytes.
func (h *Heap) allocateBig(n uintptr) (unsafe.Pointer, error) {
	pageCnt := mem.PagesFor(n + arenaHeaderSize)
	addr, err := h.pages.Reserve(uint(pageCnt))
	if err != nil {
		return nil, err
	}

	a := arenaAt(addr)
	a.magic = arenaMagic
	a.desc = nil
	a.freeCnt = uint32(pageCnt)

	h.log.WithFields(logrus.Fields{
		"bytes": n,
		"pages": pageCnt,
	}).Debug("heap: formatted big block")
	return unsafe.Pointer(addr + arenaHeaderSize), nil
}

// Free returns the block at ptr to the allocator. Freeing a nil pointer
// reports ErrNilPointer without aborting. A mismatched magic cookie or
// misaligned pointer is a contract violation reported as an error
// rather than a panic, per the specification's "production builds may
// downgrade to a logged error and return."
func (h *Heap) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return ErrNilPointer
	}

	addr := uintptr(ptr)
	pageAddr := pageFloor(addr)
	a := arenaAt(pageAddr)
	if a.magic != arenaMagic {
		return ErrCorruptArena
	}

	if a.desc == nil {
		return h.freeBig(a, pageAddr, addr)
	}
	return h.freeBlock(a, pageAddr, addr)
}

func (h *Heap) freeBlock(a *arenaHeader, pageAddr, addr uintptr) error {
	d := a.desc
	off := addr - pageAddr
	if (off-arenaHeaderSize)%d.blockSize != 0 {
		return ErrMisalignedBlock
	}

	elem := (*list.Elem)(unsafe.Pointer(addr))
	d.freeList.PushFront(elem)
	a.freeCnt++

	if uintptr(a.freeCnt) < d.blocksPerArena {
		return nil
	}

	// The arena is now fully idle: strip every one of its blocks out of
	// the descriptor's free list and release its page.
	for i := uintptr(0); i < d.blocksPerArena; i++ {
		be := (*list.Elem)(unsafe.Pointer(pageAddr + arenaHeaderSize + i*d.blockSize))
		d.freeList.Remove(be)
	}

	h.log.WithField("blockSize", d.blockSize).Debug("heap: reclaimed idle arena")
	return h.pages.Release(pageAddr, 1)
}

func (h *Heap) freeBig(a *arenaHeader, pageAddr, addr uintptr) error {
	if addr-pageAddr != arenaHeaderSize {
		return ErrMisalignedBlock
	}

	h.log.WithField("pages", a.freeCnt).Debug("heap: released big block")
	return h.pages.Release(pageAddr, uint(a.freeCnt))
}

func arenaAt(pageAddr uintptr) *arenaHeader {
	return (*arenaHeader)(unsafe.Pointer(pageAddr))
}

func pageFloor(addr uintptr) uintptr {
	return addr &^ (mem.PageSize - 1)
}
