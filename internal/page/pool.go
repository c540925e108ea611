// Package page implements the page allocator: it carves a caller-supplied
// byte region into fixed-size pages and reserves/releases contiguous runs
// of them, tracking occupancy with a bitmap placed at the region's base.
//
// This mirrors the teacher allocator's Init/AllocatePage/FreePage shape
// (github.com/achilleasa/gopher-os/kernel/mem/physical) but trades the
// teacher's per-order buddy bitmaps for the single linear-scan bitmap the
// specification calls for.
package page

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cyhwang1997/malloc/internal/bitmap"
	"github.com/cyhwang1997/malloc/internal/mem"
)

// ErrRegionTooSmall is returned by Init when the supplied region cannot
// hold its own occupancy bitmap plus at least one manageable page.
var ErrRegionTooSmall = errors.New("page: region too small for its bitmap")

// ErrNotPageAligned is returned when a pointer handed to Release is not
// aligned to a page boundary.
var ErrNotPageAligned = errors.New("page: pointer is not page-aligned")

// ErrDoubleRelease is returned when Release is asked to clear pages that
// are not all currently reserved — a contract violation (double free or
// a pointer that was never reserved).
var ErrDoubleRelease = errors.New("page: release of pages not all reserved")

// Pool owns a byte region, places a Bitmap at its base, and reserves and
// releases contiguous runs of the pages that follow.
type Pool struct {
	bm   *bitmap.Bitmap
	base uintptr // address of the first manageable page
	log  *logrus.Logger
}

// Init carves a page-occupancy bitmap out of the front of region and
// returns a Pool managing the remaining pages. region must begin on a
// page boundary; its length need not be a multiple of the page size
// (the remainder below one page is simply unmanageable).
//
// Following the original allocator this is distilled from
// (original_source/cy_malloc.c: init_pool), the bitmap's own pages are
// subtracted from the region's page count before the bitmap is built,
// so the bitmap only ever describes pages it does not itself occupy.
func Init(region []byte, log *logrus.Logger) (*Pool, error) {
	if log == nil {
		log = discardLogger()
	}

	base := uintptr(unsafe.Pointer(&region[0]))
	if !mem.PageAligned(base) {
		return nil, errors.New("page: region is not page-aligned")
	}

	pageCnt := uint(len(region) >> mem.PageShift)
	bmPages := uint(mem.PagesFor(bitmap.BufSize(pageCnt)))
	if bmPages >= pageCnt {
		return nil, ErrRegionTooSmall
	}
	pageCnt -= bmPages

	bm, err := bitmap.New(pageCnt, region)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		bm:   bm,
		base: base + uintptr(bmPages)*mem.PageSize,
		log:  log,
	}
	p.log.WithFields(logrus.Fields{
		"pages":   pageCnt,
		"bmPages": bmPages,
	}).Debug("page: pool initialized")
	return p, nil
}

// PageCount returns the number of manageable pages in the pool.
func (p *Pool) PageCount() uint {
	return p.bm.Len()
}

// Reserve scans for n contiguous free pages starting from index 0,
// marks them reserved, and returns the address of the first page. It
// returns mem.ErrOutOfMemory if no such run exists. n == 0 returns
// mem.ErrOutOfMemory without touching the bitmap (there is nothing to
// reserve).
func (p *Pool) Reserve(n uint) (uintptr, error) {
	if n == 0 {
		return 0, mem.ErrOutOfMemory
	}

	idx := p.bm.ScanAndFlip(0, n, false)
	if idx == bitmap.NotFound {
		return 0, mem.ErrOutOfMemory
	}

	return p.base + uintptr(idx)*mem.PageSize, nil
}

// Release returns the n pages starting at addr to the pool. addr must
// be page-aligned and the pool must currently show all n pages as
// reserved; otherwise Release returns an error without changing any
// bitmap state.
func (p *Pool) Release(addr uintptr, n uint) error {
	if n == 0 {
		return nil
	}
	if !mem.PageAligned(addr) {
		return ErrNotPageAligned
	}

	if addr < p.base {
		return ErrDoubleRelease
	}
	idx := uint((addr - p.base) >> mem.PageShift)
	if idx >= p.bm.Len() || n > p.bm.Len()-idx || !p.bm.All(idx, n) {
		return ErrDoubleRelease
	}

	p.bm.SetRange(idx, n, false)
	return nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
