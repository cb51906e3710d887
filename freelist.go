package halloc

import "unsafe"

// insertFree links payload into its size-class bucket in ascending size
// order. Free blocks smaller than MinBlockSize ("garbage") have nowhere to
// store next/prev pointers and are left unlinked — they stay reachable only
// through boundary-tag traversal from a neighbor during coalesce.
func (h *Heap) insertFree(payload unsafe.Pointer) {
	size := sizeOf(headerFor(payload))
	if size < MinBlockSize {
		return
	}
	idx := bucketIndex(size)
	node := freeNodeFor(payload)

	var prev unsafe.Pointer
	cur := h.buckets[idx]
	for cur != nil && sizeOf(headerFor(cur)) < size {
		prev = cur
		cur = freeNodeFor(cur).next
	}

	node.prev = prev
	node.next = cur
	if cur != nil {
		freeNodeFor(cur).prev = payload
	}
	if prev != nil {
		freeNodeFor(prev).next = payload
	} else {
		h.buckets[idx] = payload
		setBit(int64(idx), &h.bucketBitmap)
	}
}

// removeFree unlinks payload from its size-class bucket. A no-op on garbage
// blocks, which were never linked in the first place.
func (h *Heap) removeFree(payload unsafe.Pointer) {
	size := sizeOf(headerFor(payload))
	if size < MinBlockSize {
		return
	}
	idx := bucketIndex(size)
	node := freeNodeFor(payload)

	if node.prev != nil {
		freeNodeFor(node.prev).next = node.next
	} else {
		h.buckets[idx] = node.next
		if h.buckets[idx] == nil {
			clearBit(int64(idx), &h.bucketBitmap)
		}
	}
	if node.next != nil {
		freeNodeFor(node.next).prev = node.prev
	}
	node.next, node.prev = nil, nil
}

// findFit returns a free payload of size >= size, or nil if none exists.
// It scans the home bucket first for the best (smallest adequate) fit, then
// falls back to any block in the next non-empty bucket — every block there
// is at least as large as that bucket's class bound, which is itself >=
// size, so no further size check is needed.
func (h *Heap) findFit(size uint32) unsafe.Pointer {
	idx := bucketIndex(size)
	for cur := h.buckets[idx]; cur != nil; cur = freeNodeFor(cur).next {
		if sizeOf(headerFor(cur)) >= size {
			return cur
		}
	}

	if idx == NumBuckets-1 {
		return nil
	}
	above := h.bucketBitmap &^ ((uint16(1) << uint(idx+1)) - 1)
	if above == 0 {
		return nil
	}
	nextIdx := int(lsb(uint32(above)))
	return h.buckets[nextIdx]
}
