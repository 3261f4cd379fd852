// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "testing"

func TestSizeClassOfMonotonic(t *testing.T) {
	prevClass := -1
	prevSize := 0
	for n := 1; n <= largeBlockLimit; n *= 3 {
		c := sizeClassOf(n)
		if c < 0 || c >= classCount {
			t.Fatalf("sizeClassOf(%d) = %d, out of range", n, c)
		}
		if c < prevClass {
			t.Fatalf("sizeClassOf(%d) = %d, not monotonic after class %d", n, c, prevClass)
		}
		size := int(classTable[c].blockSize)
		if size < n {
			t.Fatalf("sizeClassOf(%d) = %d whose block size %d is smaller than requested", n, c, size)
		}
		if c == prevClass && size != prevSize {
			t.Fatalf("class %d has inconsistent block size across calls", c)
		}
		prevClass, prevSize = c, size
	}
}

func TestSizeClassOfFastPath(t *testing.T) {
	for blocks := 1; blocks <= 8; blocks++ {
		n := blocks * granularity
		got := sizeClassOf(n)
		if got != blocks {
			t.Errorf("sizeClassOf(%d) = %d, want %d", n, got, blocks)
		}
		if int(classTable[got].blockSize) != n {
			t.Errorf("classTable[%d].blockSize = %d, want %d", got, classTable[got].blockSize, n)
		}
	}
}

func TestSizeClassBlockCountPositive(t *testing.T) {
	for c := 0; c < classCount; c++ {
		if classTable[c].blockCount < 1 {
			t.Errorf("class %d has non-positive blockCount %d", c, classTable[c].blockCount)
		}
	}
}

func TestKindOfBoundaries(t *testing.T) {
	cases := []struct {
		class int
		want  pageKind
	}{
		{0, pageSmall},
		{smallClassCount - 1, pageSmall},
		{smallClassCount, pageMedium},
		{smallClassCount + mediumClassCount - 1, pageMedium},
		{smallClassCount + mediumClassCount, pageLarge},
		{classCount - 1, pageLarge},
	}
	for _, c := range cases {
		if got := kindOf(c.class); got != c.want {
			t.Errorf("kindOf(%d) = %v, want %v", c.class, got, c.want)
		}
	}
}

func TestRoundup(t *testing.T) {
	cases := []struct{ n, m, want int }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{4095, 4096, 4096},
	}
	for _, c := range cases {
		if got := roundup(c.n, c.m); got != c.want {
			t.Errorf("roundup(%d, %d) = %d, want %d", c.n, c.m, got, c.want)
		}
	}
}
