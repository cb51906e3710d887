package halloc

import "unsafe"

// finalizeAlloc carves req bytes out of a free block already unlinked from
// its bucket, installing whatever remains above it as either a free
// remainder (inserted into the free-list) or an unlinked "garbage" block,
// and returns payload ready to hand back to the caller.
func (h *Heap) finalizeAlloc(payload unsafe.Pointer, req uint32) unsafe.Pointer {
	hdr := headerFor(payload)
	tmp := sizeOf(hdr)
	wasMax := payload == h.maxBlock
	setSize(hdr, req)
	remainder := tmp - req

	switch {
	case remainder >= HeaderSize+MinBlockSize:
		// room for a free remainder with its own free-list threading.
		remPayload, remHdr, _ := h.carveRemainder(payload, req, remainder, wasMax)
		setFree(remHdr)
		setNextFree(hdr)
		h.insertFree(remPayload)
	case remainder != 0:
		// too small to thread: leave it as coalescible garbage.
		_, remHdr, _ := h.carveRemainder(payload, req, remainder, wasMax)
		setFree(remHdr)
		setNextFree(hdr)
	default:
		// perfect fit: the block above no longer borders a free neighbor.
		if !wasMax {
			clearPrevFree(headerFor(nextBlockPayload(payload)))
		}
	}

	clearFree(hdr)
	if payload != h.minBlock {
		clearNextFree(headerFor(prevBlockPayload(payload)))
	}
	return payload
}

// carveRemainder writes the header for the block left above a req-sized
// allocation and links it to its own successor, if any. It does not set the
// FREE flag or insert into the free-list — callers do that themselves since
// the two finalizeAlloc branches treat the remainder differently.
func (h *Heap) carveRemainder(payload unsafe.Pointer, req, remainder uint32, wasMax bool) (unsafe.Pointer, *blockHeader, uint32) {
	remPayload := unsafe.Pointer(uintptr(payload) + uintptr(req) + HeaderSize)
	remSize := remainder - HeaderSize
	remHdr := headerFor(remPayload)
	// The address this remainder lands on may still hold a stale header from
	// an earlier coalesce (interior bytes of a merged block). Overwrite the
	// whole word rather than masking, so no leftover FREE/PREV_FREE/NEXT_FREE
	// bit survives into the new header.
	remHdr.payloadSize = 0
	remHdr.prevPayloadSize = 0
	setSize(remHdr, remSize)
	setPrevSize(remHdr, req)

	if wasMax {
		h.maxBlock = remPayload
	} else {
		upper := nextBlockPayload(remPayload)
		upperHdr := headerFor(upper)
		setPrevSize(upperHdr, remSize)
		setPrevFree(upperHdr)
	}
	return remPayload, remHdr, remSize
}

// absorbUp fuses ptr with its free successor. Caller guarantees the
// successor is actually free.
func (h *Heap) absorbUp(ptr unsafe.Pointer) unsafe.Pointer {
	next := nextBlockPayload(ptr)
	nextHdr := headerFor(next)
	nextSize := sizeOf(nextHdr)
	if nextSize >= MinBlockSize {
		h.removeFree(next)
	}

	hdr := headerFor(ptr)
	newSize := sizeOf(hdr) + nextSize + HeaderSize
	setSize(hdr, newSize)

	if next == h.maxBlock {
		h.maxBlock = ptr
	} else {
		upper := nextBlockPayload(next)
		setPrevSize(headerFor(upper), newSize)
	}
	return ptr
}

// absorbDown fuses ptr with its free predecessor. Caller guarantees the
// predecessor is actually free.
func (h *Heap) absorbDown(ptr unsafe.Pointer) unsafe.Pointer {
	prev := prevBlockPayload(ptr)
	prevHdr := headerFor(prev)
	prevSize := sizeOf(prevHdr)
	if prevSize >= MinBlockSize {
		h.removeFree(prev)
	}

	ptrSize := sizeOf(headerFor(ptr))
	newSize := prevSize + ptrSize + HeaderSize
	setSize(prevHdr, newSize)

	if ptr == h.maxBlock {
		h.maxBlock = prev
	} else {
		upper := nextBlockPayload(ptr)
		setPrevSize(headerFor(upper), newSize)
	}
	return prev
}

// absorbBoth fuses ptr with both its free predecessor and free successor
// into a single block.
func (h *Heap) absorbBoth(ptr unsafe.Pointer) unsafe.Pointer {
	prev := prevBlockPayload(ptr)
	next := nextBlockPayload(ptr)
	prevHdr := headerFor(prev)
	nextHdr := headerFor(next)
	prevSize := sizeOf(prevHdr)
	nextSize := sizeOf(nextHdr)
	ptrSize := sizeOf(headerFor(ptr))

	if prevSize >= MinBlockSize {
		h.removeFree(prev)
	}
	if nextSize >= MinBlockSize {
		h.removeFree(next)
	}

	newSize := prevSize + HeaderSize + ptrSize + HeaderSize + nextSize
	setSize(prevHdr, newSize)

	if next == h.maxBlock {
		h.maxBlock = prev
	} else {
		upper := nextBlockPayload(next)
		setPrevSize(headerFor(upper), newSize)
	}
	return prev
}
