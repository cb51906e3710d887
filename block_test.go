package halloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestHeaderPayloadRoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize+32)
	payload := unsafe.Pointer(&buf[HeaderSize])
	hdr := headerFor(payload)
	assert.Equal(t, unsafe.Pointer(&buf[0]), unsafe.Pointer(hdr))
	assert.Equal(t, payload, payloadFor(hdr))
}

func TestNextPrevBlockPayload(t *testing.T) {
	// Lay out two adjacent blocks by hand: a 16-byte block followed by a
	// 24-byte block, each preceded by an 8-byte header.
	buf := make([]byte, HeaderSize+16+HeaderSize+24)

	aPayload := unsafe.Pointer(&buf[HeaderSize])
	aHdr := headerFor(aPayload)
	setSize(aHdr, 16)
	setInitSentinel(aHdr)

	bPayload := unsafe.Pointer(&buf[HeaderSize+16+HeaderSize])
	bHdr := headerFor(bPayload)
	setSize(bHdr, 24)
	setPrevSize(bHdr, 16)

	assert.Equal(t, bPayload, nextBlockPayload(aPayload))
	assert.Equal(t, aPayload, prevBlockPayload(bPayload))
}

func TestFreeNodeThreading(t *testing.T) {
	buf := make([]byte, HeaderSize+MinBlockSize)
	payload := unsafe.Pointer(&buf[HeaderSize])
	node := freeNodeFor(payload)
	node.next = unsafe.Pointer(uintptr(0x1234))
	node.prev = unsafe.Pointer(uintptr(0x5678))

	again := freeNodeFor(payload)
	assert.Equal(t, unsafe.Pointer(uintptr(0x1234)), again.next)
	assert.Equal(t, unsafe.Pointer(uintptr(0x5678)), again.prev)
}
