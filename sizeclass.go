// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "github.com/cznic/mathutil"

// sizeClass pairs a block size with the number of blocks a page of the
// owning page kind can carve out of it.
type sizeClass struct {
	blockSize  int32
	blockCount int32
}

// classBlockMultiple lists, for every one of the 73 size classes, the
// block size expressed as a multiple of granularity. Classes 0..28 are
// small (page kind small), 29..52 are medium, 53..72 are large. The
// table keeps at most ~20% internal fragmentation between classes and
// is laid out as 8 linear steps followed by, per doubling of size, 4
// geometric sub-steps (a "mantissa, exponent" scheme with two subclass
// bits — see sizeClassOf).
var classBlockMultiple = [classCount]int32{
	1, 1, 2, 3, 4, 5, 6, 7, 8, 10, 12, 14, 16, 20, 24, 28, 32, 40, 48, 56,
	64, 80, 96, 112, 128, 160, 192, 224, 256, // small: 0..28

	320, 384, 448, 512, 640, 768, 896, 1024, 1280, 1536, 1792, 2048,
	2560, 3072, 3584, 4096, 5120, 6144, 7168, 8192, 10240, 12288, 14336,
	16384, // medium: 29..52

	20480, 24576, 28672, 32768, 40960, 49152, 57344, 65536, 81920, 98304,
	114688, 131072, 163840, 196608, 229376, 262144, 327680, 393216,
	458752, 524288, // large: 53..72
}

var classTable [classCount]sizeClass

func init() {
	for c, mult := range classBlockMultiple {
		blockSize := int(mult) * granularity
		classTable[c] = sizeClass{
			blockSize:  int32(blockSize),
			blockCount: int32((pageSizeOf(kindOf(c)) - pageHeaderBytes) / blockSize),
		}
	}
}

// sizeClassOf returns the smallest size class whose block fits n
// bytes. Callers are expected to have already checked n against
// largeBlockLimit; sizes beyond the largest class take the huge path
// and never call sizeClassOf. n must be > 0.
//
// For n <= 8*granularity the class is simply ceil(n/granularity) (a
// linear run of 8 classes, the "fast path"). Above that the class is
// derived from the position of the most significant bit of
// minBlocks-1 plus two subclass bits, giving four geometric steps per
// octave -- see the teacher's own use of mathutil.BitLen for the
// analogous (but power-of-two-only) computation in the original
// package.
func sizeClassOf(n int) int {
	minBlocks := (n + granularity - 1) / granularity
	if minBlocks < 1 {
		minBlocks = 1
	}
	if minBlocks <= 8 {
		// classBlockMultiple[0] is an unreachable duplicate of [1];
		// every valid size maps directly onto index == minBlocks.
		return minBlocks
	}
	minBlocks--
	msb := mathutil.BitLen(minBlocks) - 1 // position of the most significant set bit
	subclass := (minBlocks >> uint(msb-2)) & 0x03
	class := (msb<<2 | subclass) - 3
	return class
}
