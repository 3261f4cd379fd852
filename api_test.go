// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"bytes"
	"sync"
	"testing"
	"unsafe"
)

func TestAllocFreeSmall(t *testing.T) {
	defer ThreadFinalize()
	p, err := Alloc(48)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if p == nil {
		t.Fatal("Alloc returned nil with no error")
	}
	if got := UsableSize(p); got < 48 {
		t.Fatalf("UsableSize = %d, want >= 48", got)
	}
	b := unsafe.Slice((*byte)(p), 48)
	for i := range b {
		b[i] = byte(i)
	}
	Free(p)
}

func TestCallocZeros(t *testing.T) {
	defer ThreadFinalize()
	p, err := Calloc(16, 32)
	if err != nil {
		t.Fatalf("Calloc: %v", err)
	}
	b := unsafe.Slice((*byte)(p), 16*32)
	if !bytes.Equal(b, make([]byte, len(b))) {
		t.Fatal("Calloc block is not zeroed")
	}
	Free(p)
}

func TestCallocOverflow(t *testing.T) {
	_, err := Calloc(1<<40, 1<<40)
	if err != ErrInvalidArgument {
		t.Fatalf("Calloc overflow: got err = %v, want ErrInvalidArgument", err)
	}
}

func TestAlignedAlloc(t *testing.T) {
	defer ThreadFinalize()
	for _, align := range []int{16, 32, 64, 256, 4096} {
		p, err := AlignedAlloc(100, align)
		if err != nil {
			t.Fatalf("AlignedAlloc(align=%d): %v", align, err)
		}
		if uintptr(p)%uintptr(align) != 0 {
			t.Fatalf("AlignedAlloc(align=%d) returned misaligned pointer %p", align, p)
		}
		Free(p)
	}
}

func TestAlignedAllocRejectsOversizeAlignment(t *testing.T) {
	_, err := AlignedAlloc(16, maxAlignment*2)
	if err != ErrInvalidArgument {
		t.Fatalf("AlignedAlloc(huge align): got err = %v, want ErrInvalidArgument", err)
	}
}

func TestReallocGrowsAndPreservesContent(t *testing.T) {
	defer ThreadFinalize()
	p, err := Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	b := unsafe.Slice((*byte)(p), 32)
	for i := range b {
		b[i] = byte(i + 1)
	}

	p2, err := Realloc(p, 4096)
	if err != nil {
		t.Fatalf("Realloc: %v", err)
	}
	if got := UsableSize(p2); got < 4096 {
		t.Fatalf("UsableSize after grow = %d, want >= 4096", got)
	}
	b2 := unsafe.Slice((*byte)(p2), 32)
	for i := range b2 {
		if b2[i] != byte(i+1) {
			t.Fatalf("Realloc lost content at byte %d", i)
		}
	}
	Free(p2)
}

func TestReallocToZeroFrees(t *testing.T) {
	defer ThreadFinalize()
	p, _ := Alloc(16)
	p2, err := Realloc(p, 0)
	if err != nil {
		t.Fatalf("Realloc to 0: %v", err)
	}
	if p2 != nil {
		t.Fatalf("Realloc(ptr, 0) = %p, want nil", p2)
	}
}

func TestReallocFromNilAllocates(t *testing.T) {
	defer ThreadFinalize()
	p, err := Realloc(nil, 64)
	if err != nil {
		t.Fatalf("Realloc(nil, 64): %v", err)
	}
	if p == nil {
		t.Fatal("Realloc(nil, 64) returned nil pointer")
	}
	Free(p)
}

func TestReallocNegativeSizeFails(t *testing.T) {
	defer ThreadFinalize()
	p, _ := Alloc(16)
	_, err := Realloc(p, -1)
	if err != ErrInvalidArgument {
		t.Fatalf("Realloc(ptr, -1): got err = %v, want ErrInvalidArgument", err)
	}
	Free(p)
}

func TestReallocAlignedGrowsAndPreservesContent(t *testing.T) {
	defer ThreadFinalize()
	p, err := ReallocAligned(nil, 64, 32, 0)
	if err != nil {
		t.Fatalf("ReallocAligned(nil, ...): %v", err)
	}
	if uintptr(p)%64 != 0 {
		t.Fatalf("ReallocAligned returned misaligned pointer %p", p)
	}
	b := unsafe.Slice((*byte)(p), 32)
	for i := range b {
		b[i] = byte(i + 1)
	}

	p2, err := ReallocAligned(p, 64, 4096, 0)
	if err != nil {
		t.Fatalf("ReallocAligned grow: %v", err)
	}
	if uintptr(p2)%64 != 0 {
		t.Fatalf("ReallocAligned grow returned misaligned pointer %p", p2)
	}
	b2 := unsafe.Slice((*byte)(p2), 32)
	for i := range b2 {
		if b2[i] != byte(i+1) {
			t.Fatalf("ReallocAligned lost content at byte %d", i)
		}
	}
	Free(p2)
}

func TestReallocAlignedGrowOrFail(t *testing.T) {
	defer ThreadFinalize()
	p, err := ReallocAligned(nil, 64, 32, 0)
	if err != nil {
		t.Fatalf("ReallocAligned(nil, ...): %v", err)
	}
	if _, err := ReallocAligned(p, 64, 1<<20, ReallocGrowOrFail); err != ErrInvalidArgument {
		t.Fatalf("ReallocAligned grow-or-fail: got err = %v, want ErrInvalidArgument", err)
	}
	Free(p)
}

func TestHugeAllocation(t *testing.T) {
	defer ThreadFinalize()
	size := largeBlockLimit + 1024*1024
	p, err := Alloc(size)
	if err != nil {
		t.Fatalf("Alloc(huge): %v", err)
	}
	if got := UsableSize(p); got < size {
		t.Fatalf("UsableSize(huge) = %d, want >= %d", got, size)
	}
	Free(p)
}

func TestCrossThreadFree(t *testing.T) {
	var wg sync.WaitGroup
	ptrCh := make(chan unsafe.Pointer, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ThreadFinalize()
		p, err := Alloc(128)
		if err != nil {
			t.Errorf("Alloc in producer: %v", err)
			close(ptrCh)
			return
		}
		ptrCh <- p
	}()
	wg.Wait()

	p, ok := <-ptrCh
	if !ok {
		t.Fatal("producer goroutine failed to allocate")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ThreadFinalize()
		Free(p)
	}()
	wg.Wait()
}

func TestIsThreadInitialized(t *testing.T) {
	done := make(chan bool, 1)
	go func() {
		before := IsThreadInitialized()
		ThreadInitialize()
		after := IsThreadInitialized()
		ThreadFinalize()
		done <- !before && after
	}()
	if ok := <-done; !ok {
		t.Fatal("IsThreadInitialized did not track ThreadInitialize/ThreadFinalize")
	}
}
