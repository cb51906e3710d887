package halloc

// Compile-time layout constants for the block header and free-list index.
// Mirrors the #define block at the top of the allocator this package is
// ported from: sizes are always multiples of 8, leaving the low bits of
// the size field free for the FREE/NEXT_FREE/PREV_FREE flags.
const (
	// PageSize is the unit the SegmentProvider grows the heap by. Must be
	// a power of two.
	PageSize = 4096

	// HeaderSize is the size in bytes of a block header (two uint32 words:
	// payloadSize and prevPayloadSize).
	HeaderSize = 8

	// MinBlockSize is the smallest payload a block can have: two pointer
	// words, enough to thread a free-list node through it.
	MinBlockSize = 16

	// Alignment all payload pointers and sizes are rounded to.
	Alignment = 8

	// NumBuckets is the number of segregated free-list size classes.
	NumBuckets = 15

	sizeMask     = 0x7FFFFFFC
	freeMask     = 0x80000000
	prevFreeMask = 0x00000001
	nextFreeMask = 0x00000002

	// initMask seeds prevPayloadSize on the very first block in the heap.
	// It can never collide with a real masked size value (those are always
	// even multiples of 8) while still permitting the PREV_FREE bit (0x01)
	// to be read without special-casing.
	initMask = 0xFFFFFFFE
)
