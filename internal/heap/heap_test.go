package heap

import (
	"testing"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cyhwang1997/malloc/internal/mem"
	"github.com/cyhwang1997/malloc/internal/page"
)

func alignedRegion(t *testing.T, pages int) []byte {
	t.Helper()
	raw := make([]byte, pages*mem.PageSize+mem.PageSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := mem.Align(base, mem.PageSize)
	return raw[aligned-base : aligned-base+uintptr(pages*mem.PageSize)]
}

func newTestHeap(t *testing.T, pages int) *Heap {
	t.Helper()
	region := alignedRegion(t, pages)
	pool, err := page.Init(region, nil)
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(nullWriter{})
	return New(pool, log)
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAllocate_ZeroBytesReturnsNil(t *testing.T) {
	h := newTestHeap(t, 8)
	ptr, err := h.Allocate(0)
	require.NoError(t, err)
	require.Nil(t, ptr)
}

func TestAllocateFree_SmallBlockRoundTrip(t *testing.T) {
	h := newTestHeap(t, 8)

	ptr, err := h.Allocate(24)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	require.NoError(t, h.Free(ptr))
}

func TestAllocate_SelectsSmallestFittingPrimaryClass(t *testing.T) {
	h := newTestHeap(t, 8)

	p1, err := h.Allocate(20)
	require.NoError(t, err)
	p2, err := h.Allocate(20)
	require.NoError(t, err)

	d1 := arenaAt(pageFloor(uintptr(p1))).desc
	d2 := arenaAt(pageFloor(uintptr(p2))).desc
	require.Equal(t, uintptr(32), d1.BlockSize(), "20 bytes should round up to the 32-byte class")
	require.Same(t, d1, d2, "two same-size allocations should share a descriptor")
}

func TestDeclareSizeClass_ExactMatchPreferred(t *testing.T) {
	h := newTestHeap(t, 8)
	require.NoError(t, h.DeclareSizeClass(20))

	ptr, err := h.Allocate(20)
	require.NoError(t, err)

	d := arenaAt(pageFloor(uintptr(ptr))).desc
	require.Equal(t, uintptr(20), d.BlockSize(), "an exact supplementary class must win over a larger primary class")
}

func TestDeclareSizeClass_Rejections(t *testing.T) {
	h := newTestHeap(t, 8)

	require.ErrorIs(t, h.DeclareSizeClass(0), ErrZeroSize)
	require.ErrorIs(t, h.DeclareSizeClass(mem.PageSize/2), ErrSizeTooLarge)

	require.NoError(t, h.DeclareSizeClass(100))
	require.ErrorIs(t, h.DeclareSizeClass(100), ErrDuplicateSizeClass)
	require.ErrorIs(t, h.DeclareSizeClass(32), ErrDuplicateSizeClass, "duplicate check must also cover the primary table")
}

func TestAllocate_BigBlockPath(t *testing.T) {
	h := newTestHeap(t, 16)

	ptr, err := h.Allocate(mem.PageSize)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	a := arenaAt(pageFloor(uintptr(ptr)))
	require.Nil(t, a.desc, "a request at least half a page must take the big-block path")

	require.NoError(t, h.Free(ptr))
}

func TestFree_NilPointer(t *testing.T) {
	h := newTestHeap(t, 8)
	require.ErrorIs(t, h.Free(nil), ErrNilPointer)
}

func TestFree_CorruptMagicCookie(t *testing.T) {
	h := newTestHeap(t, 8)
	ptr, err := h.Allocate(16)
	require.NoError(t, err)

	a := arenaAt(pageFloor(uintptr(ptr)))
	a.magic = 0

	require.ErrorIs(t, h.Free(ptr), ErrCorruptArena)
}

func TestFree_MisalignedPointer(t *testing.T) {
	h := newTestHeap(t, 8)
	ptr, err := h.Allocate(16)
	require.NoError(t, err)

	bad := unsafe.Pointer(uintptr(ptr) + 1)
	require.ErrorIs(t, h.Free(bad), ErrMisalignedBlock)
}

func TestArenaReclaim_PageReleasedWhenFullyIdle(t *testing.T) {
	h := newTestHeap(t, 8)

	d := h.primary[0] // 16-byte class
	blocksPerArena := int(d.BlocksPerArena())

	ptrs := make([]unsafe.Pointer, blocksPerArena)
	for i := range ptrs {
		p, err := h.Allocate(16)
		require.NoError(t, err)
		ptrs[i] = p
	}

	pageAddr := pageFloor(uintptr(ptrs[0]))
	for _, p := range ptrs[:len(ptrs)-1] {
		require.NoError(t, h.Free(p))
		require.False(t, d.freeList.Empty(), "the arena's freed blocks must stay on the free list until every block returns")
	}

	last := ptrs[len(ptrs)-1]
	require.NoError(t, h.Free(last))

	require.True(t, d.freeList.Empty(), "reclaiming the arena must strip every block from the free list")

	addr, err := h.pages.Reserve(1)
	require.NoError(t, err)
	require.Equal(t, pageAddr, addr, "the reclaimed page must be available to the page allocator again")
}

func TestAllocate_GrowsANewArenaWhenFreeListExhausted(t *testing.T) {
	h := newTestHeap(t, 8)
	d := h.primary[0]
	blocksPerArena := int(d.BlocksPerArena())

	for i := 0; i < blocksPerArena; i++ {
		_, err := h.Allocate(16)
		require.NoError(t, err)
	}
	require.True(t, d.freeList.Empty())

	ptr, err := h.Allocate(16)
	require.NoError(t, err)
	require.NotNil(t, ptr)
}
