package halloc

// Fast msb/lsb lookup, carried over from the two-level segregated-fit
// design this allocator was generalized from: a flat 256-entry table avoids
// a loop when classifying the top byte of a (masked) 32-bit size.
var table = [256]int64{
	-1, 0, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7,
}

// msb returns the position of the most significant set bit of n, or -1 for
// n == 0.
func msb(n uint32) int64 {
	x := n
	var a uint32
	if x <= 0xffff {
		if x <= 0xff {
			a = 0
		} else {
			a = 8
		}
	} else {
		if x <= 0xffffff {
			a = 16
		} else {
			a = 24
		}
	}
	return table[x>>a] + int64(a)
}

// lsb returns the position of the least significant set bit of n, or -1 for
// n == 0.
func lsb(n uint32) int64 {
	x := n & -n
	var a uint32
	if x <= 0xffff {
		if x <= 0xff {
			a = 0
		} else {
			a = 8
		}
	} else {
		if x <= 0xffffff {
			a = 16
		} else {
			a = 24
		}
	}
	return table[x>>a] + int64(a)
}

// setBit sets bit nr of *addr.
func setBit(nr int64, addr *uint16) {
	*addr |= 1 << uint(nr&0xf)
}

// clearBit clears bit nr of *addr.
func clearBit(nr int64, addr *uint16) {
	*addr &^= 1 << uint(nr&0xf)
}

// roundUp rounds size up to the next multiple of Alignment, 0 staying 0.
func roundUp(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// roundDown rounds size down to the previous multiple of Alignment.
func roundDown(size uint32) uint32 {
	return size &^ (Alignment - 1)
}

// requestedSize turns a caller-supplied byte count into the payload size
// this allocator actually carves out: 8-byte aligned, never smaller than
// MinBlockSize so the block can always hold free-list threading once freed.
func requestedSize(n int) uint32 {
	rounded := roundUp(uint32(n))
	if rounded < MinBlockSize {
		return MinBlockSize
	}
	return rounded
}

// bucketIndex maps a payload size to its segregated free-list bucket.
// Ported from the original allocator's clz-based classifier: bits-used(size)
// clamped from above at NumBuckets-1, offset so the smallest class (sizes in
// [16,31]) lands on bucket 2 exactly as the C original's cal_bucket does.
func bucketIndex(size uint32) int {
	bitsUsed := msb(size) + 1
	if bitsUsed >= NumBuckets+2 {
		return NumBuckets - 1
	}
	idx := bitsUsed - 3
	if idx < 0 {
		idx = 0
	}
	return int(idx)
}
