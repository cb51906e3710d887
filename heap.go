package halloc

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Heap is a general-purpose allocator over a page-granular segment supplied
// by a SegmentProvider. It is not safe for concurrent use by multiple
// goroutines — callers needing that must serialize their own access; see
// the REDESIGN FLAG note in DESIGN.md for why this is a struct field set
// rather than the process-global state the allocator this package is
// descended from used.
type Heap struct {
	provider SegmentProvider

	buckets      [NumBuckets]unsafe.Pointer
	bucketBitmap uint16

	minBlock unsafe.Pointer
	maxBlock unsafe.Pointer

	usedBytes int64
	freeBytes int64
}

// New creates a Heap backed by provider and performs its initial
// InitHeapSegment call. Equivalent to calling Init on a zero Heap with
// provider assigned.
func New(provider SegmentProvider) (*Heap, error) {
	h := &Heap{provider: provider}
	if err := h.Init(); err != nil {
		return nil, err
	}
	return h, nil
}

// Init (re)initializes h: the underlying segment is reset to a single page
// and every bucket is emptied. Safe to call again on an already-initialized
// Heap to discard all of its state.
func (h *Heap) Init() error {
	if h.provider == nil {
		return ErrSegmentProviderRequired
	}

	for i := range h.buckets {
		h.buckets[i] = nil
	}
	h.bucketBitmap = 0
	h.usedBytes = 0
	h.freeBytes = 0

	base, err := h.provider.InitHeapSegment(1)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "halloc: initializing heap segment"), ErrSegmentInit)
	}

	payload := unsafe.Pointer(uintptr(base) + HeaderSize)
	hdr := headerFor(payload)
	size := uint32(PageSize - HeaderSize)
	hdr.payloadSize = 0
	hdr.prevPayloadSize = 0
	setSize(hdr, size)
	setFree(hdr)
	setInitSentinel(hdr)

	h.minBlock = payload
	h.maxBlock = payload
	h.insertFree(payload)
	h.freeBytes = int64(size)

	return nil
}

// Alloc returns a pointer to at least size bytes of 8-byte-aligned,
// writable memory, or nil if size is 0 or the segment provider refuses to
// grow the heap any further.
func (h *Heap) Alloc(size int) unsafe.Pointer {
	if size <= 0 {
		return nil
	}
	req := requestedSize(size)

	if candidate := h.findFit(req); candidate != nil {
		h.removeFree(candidate)
		beforeSize := sizeOf(headerFor(candidate))
		h.freeBytes -= int64(beforeSize)

		result := h.finalizeAlloc(candidate, req)
		h.usedBytes += int64(req)
		if consumed := beforeSize - req; consumed != 0 {
			h.freeBytes += int64(consumed - HeaderSize)
		}
		return result
	}

	return h.extend(req)
}

// extend asks the segment provider for enough whole pages to cover req
// bytes of payload plus its header, stitches the new region onto the top
// of the implicit list, and finalizes it exactly as a found free block
// would be.
func (h *Heap) extend(req uint32) unsafe.Pointer {
	nPages := int((uint64(req) + HeaderSize + PageSize - 1) / PageSize)

	base, err := h.provider.ExtendHeapSegment(nPages)
	if err != nil || base == nil {
		return nil
	}

	totalSize := uint32(nPages)*PageSize - HeaderSize
	payload := unsafe.Pointer(uintptr(base) + HeaderSize)
	hdr := headerFor(payload)
	hdr.payloadSize = 0
	hdr.prevPayloadSize = 0

	oldMax := h.maxBlock
	oldMaxHdr := headerFor(oldMax)
	setPrevSize(hdr, sizeOf(oldMaxHdr))
	setSize(hdr, totalSize)
	if isFree(oldMaxHdr) {
		setPrevFree(hdr)
	}
	h.maxBlock = payload

	result := h.finalizeAlloc(payload, req)
	h.usedBytes += int64(req)
	if consumed := totalSize - req; consumed != 0 {
		h.freeBytes += int64(consumed - HeaderSize)
	}
	return result
}

// Free releases ptr, a payload previously returned by Alloc or Realloc on
// this Heap. ptr == nil is a no-op.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	freedSize := sizeOf(headerFor(ptr))
	h.usedBytes -= int64(freedSize)
	h.freeBytes += int64(freedSize)
	h.freeBlock(ptr)
}

// freeBlock coalesces ptr with any free neighbors, reconciles adjacency
// flags, marks the result free, and reinserts it into the free-list index.
// Returns the (possibly different) payload pointer of the merged block.
func (h *Heap) freeBlock(ptr unsafe.Pointer) unsafe.Pointer {
	hdr := headerFor(ptr)
	prevFree := ptr != h.minBlock && hasPrevFree(hdr)
	nextFree := ptr != h.maxBlock && hasNextFree(hdr)

	var reclaimed int64
	if prevFree {
		reclaimed += HeaderSize
	}
	if nextFree {
		reclaimed += HeaderSize
	}

	merged := ptr
	switch {
	case !prevFree && !nextFree:
		// no merge
	case !prevFree && nextFree:
		merged = h.absorbUp(ptr)
	case prevFree && !nextFree:
		merged = h.absorbDown(ptr)
	default:
		merged = h.absorbBoth(ptr)
	}

	mergedHdr := headerFor(merged)
	setFree(mergedHdr)
	if merged != h.maxBlock {
		setPrevFree(headerFor(nextBlockPayload(merged)))
	}
	if merged != h.minBlock {
		setNextFree(headerFor(prevBlockPayload(merged)))
	}
	h.insertFree(merged)
	h.freeBytes += reclaimed
	return merged
}

// Realloc resizes the allocation at ptr to newSize bytes, preserving its
// contents up to min(old size, new size). A nil ptr behaves like Alloc. A
// zero-sized request is rounded up to MinBlockSize like any other size: it
// returns ptr unchanged when ptr's block already has that size, and nil
// otherwise. An unsatisfiable request returns nil without touching ptr.
// Growth is attempted in place against a free forward neighbor first;
// otherwise it falls back to allocate + copy + free. There is no in-place
// shrink path — see DESIGN.md's Open Question notes.
func (h *Heap) Realloc(ptr unsafe.Pointer, newSize int) unsafe.Pointer {
	if ptr == nil {
		return h.Alloc(newSize)
	}

	req := requestedSize(newSize)
	hdr := headerFor(ptr)
	current := sizeOf(hdr)
	if req == current {
		return ptr
	}

	if req > current && ptr != h.maxBlock && hasNextFree(hdr) {
		if grown := h.reallocGrowInPlace(ptr, req, current); grown != nil {
			return grown
		}
	}

	newPtr := h.Alloc(newSize)
	if newPtr == nil {
		return nil
	}
	copySize := current
	if req < copySize {
		copySize = req
	}
	if copySize > 0 {
		src := unsafe.Slice((*byte)(ptr), copySize)
		dst := unsafe.Slice((*byte)(newPtr), copySize)
		copy(dst, src)
	}
	h.Free(ptr)
	return newPtr
}

// reallocGrowInPlace consumes exactly req-current bytes from ptr's free
// forward neighbor when that neighbor has enough spare payload to both
// satisfy the growth and still leave a free remainder of at least
// MinBlockSize above it. Returns nil if the neighbor is too small, leaving the caller to fall
// back to the copying path.
func (h *Heap) reallocGrowInPlace(ptr unsafe.Pointer, req, current uint32) unsafe.Pointer {
	next := nextBlockPayload(ptr)
	nextHdr := headerFor(next)
	nextSize := sizeOf(nextHdr)

	if current+nextSize < req+MinBlockSize {
		return nil
	}

	h.removeFree(next)
	h.freeBytes -= int64(nextSize)
	wasMax := next == h.maxBlock
	nextBorderedFree := hasNextFree(nextHdr)

	remPayload := unsafe.Pointer(uintptr(ptr) + uintptr(req) + HeaderSize)
	remSize := current + nextSize - req
	remHdr := headerFor(remPayload)
	remHdr.payloadSize = 0
	remHdr.prevPayloadSize = 0
	setSize(remHdr, remSize)
	setPrevSize(remHdr, req)
	if nextBorderedFree {
		setNextFree(remHdr)
	}

	hdr := headerFor(ptr)
	setSize(hdr, req)
	setNextFree(hdr)

	if wasMax {
		h.maxBlock = remPayload
	} else {
		upper := nextBlockPayload(remPayload)
		setPrevSize(headerFor(upper), remSize)
	}

	h.usedBytes += int64(req - current)
	h.freeBytes += int64(remSize)
	h.freeBlock(remPayload)
	return ptr
}

// UsedBytes returns the total payload bytes currently allocated.
func (h *Heap) UsedBytes() int64 {
	return h.usedBytes
}

// FreeBytes returns the total payload bytes currently free, including
// unlinked "garbage" blocks too small to thread into a bucket.
func (h *Heap) FreeBytes() int64 {
	return h.freeBytes
}

// Violation describes a single inconsistency found by ValidateHeap.
type Violation struct {
	Kind    string
	Payload unsafe.Pointer
	Detail  string
}

// ValidationReport is the result of walking the heap's implicit list and
// free-list index looking for invariant violations.
type ValidationReport struct {
	OK         bool
	Violations []Violation
}

// ValidateHeap walks the implicit list from the lowest to the highest
// block, and every free-list bucket, checking that every block-layout and
// free-list invariant this package depends on still holds. It never
// mutates the heap.
func (h *Heap) ValidateHeap() *ValidationReport {
	report := &ValidationReport{OK: true}
	add := func(kind string, payload unsafe.Pointer, detail string) {
		report.OK = false
		report.Violations = append(report.Violations, Violation{Kind: kind, Payload: payload, Detail: detail})
	}

	linked := make(map[unsafe.Pointer]bool)
	for i := 0; i < NumBuckets; i++ {
		for cur := h.buckets[i]; cur != nil; cur = freeNodeFor(cur).next {
			linked[cur] = true
			if got := bucketIndex(sizeOf(headerFor(cur))); got != i {
				add("misplaced-bucket", cur, "block sits in the wrong size-class bucket")
			}
		}
	}

	if h.minBlock == nil {
		return report
	}

	for cur := h.minBlock; ; {
		hdr := headerFor(cur)

		if cur != h.maxBlock {
			next := nextBlockPayload(cur)
			nextHdr := headerFor(next)
			if prevSizeOf(nextHdr) != sizeOf(hdr) {
				add("boundary-tag-mismatch", cur, "successor's prevPayloadSize disagrees with this block's size")
			}
			if isFree(hdr) != hasPrevFree(nextHdr) {
				add("prev-free-flag-mismatch", cur, "FREE state disagrees with successor's PREV_FREE flag")
			}
			if isFree(hdr) && isFree(nextHdr) {
				add("adjacent-free-blocks", cur, "two adjacent free blocks were not coalesced")
			}
		}
		if cur != h.minBlock {
			prevHdr := headerFor(prevBlockPayload(cur))
			if isFree(hdr) != hasNextFree(prevHdr) {
				add("next-free-flag-mismatch", cur, "FREE state disagrees with predecessor's NEXT_FREE flag")
			}
		}
		if isFree(hdr) && sizeOf(hdr) >= MinBlockSize && !linked[cur] {
			add("unreachable-free-block", cur, "free block large enough to be linked is absent from every bucket")
		}

		if cur == h.maxBlock {
			break
		}
		cur = nextBlockPayload(cur)
	}

	return report
}
