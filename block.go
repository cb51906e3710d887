package halloc

import "unsafe"

// headerFor returns the header immediately preceding payload.
func headerFor(payload unsafe.Pointer) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(uintptr(payload) - HeaderSize))
}

// payloadFor returns the payload immediately following h.
func payloadFor(h *blockHeader) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + HeaderSize)
}

// nextBlockPayload returns the payload of the block immediately above
// payload in address order. The caller is responsible for checking payload
// against the heap's maxBlock before calling this — there is no successor
// past maxBlock.
func nextBlockPayload(payload unsafe.Pointer) unsafe.Pointer {
	h := headerFor(payload)
	next := uintptr(payload) + uintptr(sizeOf(h))
	return unsafe.Pointer(next + HeaderSize)
}

// prevBlockPayload returns the payload of the block immediately below
// payload in address order. The caller is responsible for checking payload
// against the heap's minBlock before calling this — there is no predecessor
// below minBlock, and prevSizeOf is meaningless there.
func prevBlockPayload(payload unsafe.Pointer) unsafe.Pointer {
	h := headerFor(payload)
	return unsafe.Pointer(uintptr(payload) - HeaderSize - uintptr(prevSizeOf(h)))
}

// freeNode overlays the first two pointer-words of a free block's payload,
// threading it into its bucket's doubly-linked free-list. Only valid when
// the block's payload is at least MinBlockSize bytes — smaller free blocks
// ("garbage") are never linked and must not be read through this view.
type freeNode struct {
	next unsafe.Pointer
	prev unsafe.Pointer
}

func freeNodeFor(payload unsafe.Pointer) *freeNode {
	return (*freeNode)(payload)
}
