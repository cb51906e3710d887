package halloc

// blockHeader is the 8-byte packed header preceding every block's payload.
//
// payloadSize combines the block's payload size (bits 2-30, always a
// multiple of 8) with three flags: FREE (bit 31), NEXT_FREE (bit 1) and
// PREV_FREE (bit 0). prevPayloadSize carries the payload size of the
// immediately preceding block in address order, used for O(1) backward
// navigation; on the very first block in a heap it instead holds the
// initMask sentinel.
type blockHeader struct {
	payloadSize     uint32
	prevPayloadSize uint32
}

// sizeOf returns the payload size encoded in h, flags stripped.
func sizeOf(h *blockHeader) uint32 {
	return h.payloadSize & sizeMask
}

// prevSizeOf returns the preceding block's payload size, flags stripped.
// Meaningless on the first block in the heap; callers must check address
// against the heap's minBlock before trusting it.
func prevSizeOf(h *blockHeader) uint32 {
	return h.prevPayloadSize & sizeMask
}

func isFree(h *blockHeader) bool {
	return h.payloadSize&freeMask != 0
}

func hasPrevFree(h *blockHeader) bool {
	return h.payloadSize&prevFreeMask != 0
}

func hasNextFree(h *blockHeader) bool {
	return h.payloadSize&nextFreeMask != 0
}

// setSize overwrites the size bits of h, preserving FREE/NEXT_FREE/PREV_FREE.
// v must already be 8-byte aligned; callers that forget to mask before
// calling this would otherwise clobber the flag bits it is meant to
// preserve, so the mask is applied here unconditionally.
func setSize(h *blockHeader, v uint32) {
	h.payloadSize = (h.payloadSize &^ sizeMask) | (v & sizeMask)
}

func setPrevSize(h *blockHeader, v uint32) {
	h.prevPayloadSize = v & sizeMask
}

// setInitSentinel marks h as having no predecessor. Only ever called on the
// very first block laid out by a fresh heap segment.
func setInitSentinel(h *blockHeader) {
	h.prevPayloadSize = initMask
}

func setFree(h *blockHeader) {
	h.payloadSize |= freeMask
}

func clearFree(h *blockHeader) {
	h.payloadSize &^= freeMask
}

func setPrevFree(h *blockHeader) {
	h.payloadSize |= prevFreeMask
}

func clearPrevFree(h *blockHeader) {
	h.payloadSize &^= prevFreeMask
}

func setNextFree(h *blockHeader) {
	h.payloadSize |= nextFreeMask
}

func clearNextFree(h *blockHeader) {
	h.payloadSize &^= nextFreeMask
}
