package halloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildThreeBlocks lays out three contiguous blocks of the given payload
// sizes in one backing array and returns their payload pointers plus a Heap
// with min/maxBlock set accordingly. None of the three are linked into any
// free-list bucket; tests do that explicitly where needed.
func buildThreeBlocks(t *testing.T, sizeA, sizeB, sizeC uint32) (h *Heap, a, b, c unsafe.Pointer) {
	t.Helper()
	total := 3*HeaderSize + sizeA + sizeB + sizeC
	buf := make([]byte, total)

	a = unsafe.Pointer(&buf[HeaderSize])
	aHdr := headerFor(a)
	setSize(aHdr, sizeA)
	setInitSentinel(aHdr)

	b = nextBlockPayload(a)
	bHdr := headerFor(b)
	setSize(bHdr, sizeB)
	setPrevSize(bHdr, sizeA)

	// B's size must be set before computing B's successor, since
	// nextBlockPayload(b) depends on it, which it is.
	c = nextBlockPayload(b)
	cHdr := headerFor(c)
	setSize(cHdr, sizeC)
	setPrevSize(cHdr, sizeB)

	h = &Heap{minBlock: a, maxBlock: c}
	return h, a, b, c
}

func TestAbsorbUp(t *testing.T) {
	h, a, b, c := buildThreeBlocks(t, 32, 32, 32)
	setFree(headerFor(b))
	h.insertFree(b)

	merged := h.absorbUp(a)
	assert.Equal(t, a, merged)
	assert.Equal(t, uint32(32+32+HeaderSize), sizeOf(headerFor(merged)))
	// c's prevPayloadSize must now reflect the merged block's size.
	assert.Equal(t, sizeOf(headerFor(merged)), prevSizeOf(headerFor(c)))
	assert.Nil(t, h.buckets[bucketIndex(32)], "absorbed block must be unlinked")
}

func TestAbsorbDown(t *testing.T) {
	h, a, b, c := buildThreeBlocks(t, 32, 32, 32)
	setFree(headerFor(a))
	h.insertFree(a)

	merged := h.absorbDown(b)
	assert.Equal(t, a, merged)
	assert.Equal(t, uint32(32+32+HeaderSize), sizeOf(headerFor(merged)))
	assert.Equal(t, sizeOf(headerFor(merged)), prevSizeOf(headerFor(c)))
}

func TestAbsorbBoth(t *testing.T) {
	h, a, b, c := buildThreeBlocks(t, 32, 32, 32)
	setFree(headerFor(a))
	setFree(headerFor(c))
	h.insertFree(a)
	h.insertFree(c)

	merged := h.absorbBoth(b)
	assert.Equal(t, a, merged)
	assert.Equal(t, uint32(32+HeaderSize+32+HeaderSize+32), sizeOf(headerFor(merged)))
	assert.Equal(t, merged, h.maxBlock, "absorbing the top block must advance maxBlock")
}

func TestFinalizeAllocSplits(t *testing.T) {
	buf := make([]byte, HeaderSize+200)
	payload := unsafe.Pointer(&buf[HeaderSize])
	hdr := headerFor(payload)
	setSize(hdr, 200)
	setInitSentinel(hdr)

	h := &Heap{minBlock: payload, maxBlock: payload}
	result := h.finalizeAlloc(payload, 64)

	require.Equal(t, payload, result)
	assert.Equal(t, uint32(64), sizeOf(headerFor(result)))
	assert.False(t, isFree(headerFor(result)))

	rem := nextBlockPayload(result)
	assert.Equal(t, uint32(200-64-HeaderSize), sizeOf(headerFor(rem)))
	assert.True(t, isFree(headerFor(rem)))
	assert.Equal(t, rem, h.maxBlock)
	assert.NotNil(t, h.findFit(1), "remainder must be reachable through the free-list")
}

func TestFinalizeAllocGarbageTailNotLinked(t *testing.T) {
	// payload 80 with a request that leaves an 8-byte (too small to split)
	// remainder: 80 - 64 = 16, which is below HeaderSize+MinBlockSize(24).
	buf := make([]byte, HeaderSize+80)
	payload := unsafe.Pointer(&buf[HeaderSize])
	hdr := headerFor(payload)
	setSize(hdr, 80)
	setInitSentinel(hdr)

	h := &Heap{minBlock: payload, maxBlock: payload}
	result := h.finalizeAlloc(payload, 64)

	rem := nextBlockPayload(result)
	assert.True(t, isFree(headerFor(rem)))
	assert.Equal(t, uint32(80-64-HeaderSize), sizeOf(headerFor(rem)))
	for i := 0; i < NumBuckets; i++ {
		assert.Nil(t, h.buckets[i], "garbage remainder must never be linked")
	}
}

func TestFinalizeAllocPerfectFit(t *testing.T) {
	buf := make([]byte, HeaderSize+64)
	payload := unsafe.Pointer(&buf[HeaderSize])
	hdr := headerFor(payload)
	setSize(hdr, 64)
	setInitSentinel(hdr)

	h := &Heap{minBlock: payload, maxBlock: payload}
	result := h.finalizeAlloc(payload, 64)

	assert.Equal(t, payload, result)
	assert.Equal(t, uint32(64), sizeOf(headerFor(result)))
	assert.Equal(t, payload, h.maxBlock)
}
