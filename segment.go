package halloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// SegmentProvider is the host collaborator this allocator is built on top
// of: it owns a page-granular, contiguously growable region of memory and
// hands out whole pages on request. The allocator treats every page it
// receives as contiguous with everything it has received before — a
// provider that cannot uphold that must not be used with this package.
type SegmentProvider interface {
	// InitHeapSegment (re)initializes the segment to exactly nPages pages
	// and returns the base address of the first page.
	InitHeapSegment(nPages int) (unsafe.Pointer, error)
	// ExtendHeapSegment grows the segment by nPages more pages, contiguous
	// with whatever was returned before, and returns the new region's
	// starting address.
	ExtendHeapSegment(nPages int) (unsafe.Pointer, error)
}

// SliceProvider is a SegmentProvider backed by a single fixed-capacity
// []byte, acquired once up front. It never reallocates, so addresses handed
// out to the allocator stay valid for the provider's lifetime — the same
// guarantee the teacher's arena-backed design relied on, here given to an
// external collaborator instead of held inside the allocator itself.
type SliceProvider struct {
	backing []byte
	used    int
	calls   int

	failAfter int // -1 disables injected failure
}

// NewSliceProvider allocates a backing array capable of holding capacityBytes
// worth of pages. capacityBytes is rounded up to a whole number of pages.
func NewSliceProvider(capacityBytes int) *SliceProvider {
	pages := (capacityBytes + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	return &SliceProvider{
		backing:   make([]byte, pages*PageSize),
		failAfter: -1,
	}
}

// FailAfter lets the first n calls to InitHeapSegment or ExtendHeapSegment
// succeed and makes every later one fail, regardless of remaining capacity.
// The count restarts at each InitHeapSegment call. Used to exercise
// the allocator's out-of-memory path in tests. Pass a negative n to disable.
func (p *SliceProvider) FailAfter(n int) {
	p.failAfter = n
}

func (p *SliceProvider) nextChunk(nPages int) (unsafe.Pointer, error) {
	p.calls++
	if p.failAfter >= 0 && p.calls > p.failAfter {
		return nil, errors.New("sliceprovider: injected failure")
	}
	need := nPages * PageSize
	if p.used+need > len(p.backing) {
		return nil, errors.Newf("sliceprovider: out of memory (need %d bytes, %d available)",
			need, len(p.backing)-p.used)
	}
	ptr := unsafe.Pointer(&p.backing[p.used])
	p.used += need
	return ptr, nil
}

func (p *SliceProvider) InitHeapSegment(nPages int) (unsafe.Pointer, error) {
	p.used = 0
	p.calls = 0
	return p.nextChunk(nPages)
}

func (p *SliceProvider) ExtendHeapSegment(nPages int) (unsafe.Pointer, error) {
	return p.nextChunk(nPages)
}
