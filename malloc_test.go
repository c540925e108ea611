package malloc

import (
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, pages int) *Allocator {
	t.Helper()
	region := alignedRegion(t, pages)
	a, err := New(region)
	require.NoError(t, err)
	return a
}

func alignedRegion(t *testing.T, pages int) []byte {
	t.Helper()
	raw := make([]byte, pages*PageSize+PageSize)
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + PageSize - 1) &^ (PageSize - 1)
	return raw[aligned-base : aligned-base+uintptr(pages*PageSize)]
}

func TestNew_RejectsShortRegion(t *testing.T) {
	_, err := New(make([]byte, 1))
	require.Error(t, err)
}

func TestNewFromAddr_RejectsBackwardsRange(t *testing.T) {
	_, err := NewFromAddr(10, 5)
	require.ErrorIs(t, err, ErrInvalidRegion)
}

func TestAllocateFree_BytesRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 8)

	buf, err := a.AllocateBytes(48)
	require.NoError(t, err)
	require.Len(t, buf, 48)

	for i := range buf {
		buf[i] = byte(i)
	}
	for i := range buf {
		require.Equal(t, byte(i), buf[i])
	}

	require.NoError(t, a.FreeBytes(buf))
}

func TestFreeBytes_EmptySliceIsRejected(t *testing.T) {
	a := newTestAllocator(t, 8)
	require.ErrorIs(t, a.FreeBytes(nil), ErrNilPointer)
}

func TestReservePagesReleasePages(t *testing.T) {
	a := newTestAllocator(t, 16)

	ptr, err := a.ReservePages(2)
	require.NoError(t, err)
	require.NotNil(t, ptr)

	require.NoError(t, a.ReleasePages(ptr, 2))
}

func TestDeclareSizeClass_WiresIntoAllocate(t *testing.T) {
	a := newTestAllocator(t, 8)
	require.NoError(t, a.DeclareSizeClass(10))

	buf, err := a.AllocateBytes(10)
	require.NoError(t, err)
	require.Len(t, buf, 10)
}

func TestWithSizeClasses_Option(t *testing.T) {
	region := alignedRegion(t, 8)
	a, err := New(region, WithSizeClasses(10, 96))
	require.NoError(t, err)

	_, err = a.Allocate(96)
	require.NoError(t, err)

	err = a.DeclareSizeClass(96)
	require.Error(t, err, "WithSizeClasses must register before construction returns")
}

func TestPageCount_ExcludesBitmapPages(t *testing.T) {
	a := newTestAllocator(t, 16)
	require.Less(t, a.PageCount(), uint(16))
}

// TestAllocate_DeterministicAddressSequence checks that two identically
// configured allocators over freshly zeroed regions hand out the same
// sequence of addresses, measured as offsets from each allocator's first
// allocation, for the same sequence of requests — a structural
// property better expressed as a diff of the two traces than as a chain
// of individual require.Equal calls.
func TestAllocate_DeterministicAddressSequence(t *testing.T) {
	trace := func(t *testing.T) []uintptr {
		a := newTestAllocator(t, 8)
		var got []uintptr
		var first uintptr
		for i, n := range []uintptr{16, 32, 64, 16, 128} {
			ptr, err := a.Allocate(n)
			require.NoError(t, err)
			if i == 0 {
				first = uintptr(ptr)
			}
			got = append(got, uintptr(ptr)-first)
		}
		return got
	}

	first := trace(t)
	second := trace(t)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("allocation trace over a fresh region must be deterministic (-first +second):\n%s", diff)
	}
}
