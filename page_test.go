// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"testing"
	"unsafe"
)

func newTestPage(t *testing.T, class int32) (*span, *page) {
	t.Helper()
	s, err := newSpan(kindOf(int(class)), false, 0)
	if err != nil {
		t.Fatalf("newSpan: %v", err)
	}
	h := newHeap()
	p := spanAllocatePage(s, h, class)
	if p == nil {
		t.Fatal("spanAllocatePage returned nil on a fresh span")
	}
	return s, p
}

// TestHeapAllocateBlockFillsPage drives a fresh page to exhaustion
// through the heap entry point, exercising the local free list, the
// bump-initialization path and the eager small-page linking together,
// the way a real allocation burst does.
func TestHeapAllocateBlockFillsPage(t *testing.T) {
	h := newHeap()
	const class = int32(2) // blockSize = 2*granularity = 32
	count := int(classTable[class].blockCount)

	seen := make(map[uintptr]bool, count)
	for i := 0; i < count; i++ {
		b, err := h.AllocateBlock(int(classTable[class].blockSize), false)
		if err != nil {
			t.Fatalf("AllocateBlock at %d/%d: %v", i, count, err)
		}
		addr := uintptr(b)
		if seen[addr] {
			t.Fatalf("block address %x handed out twice", addr)
		}
		seen[addr] = true
	}
	if len(seen) != count {
		t.Fatalf("handed out %d distinct blocks, want %d", len(seen), count)
	}
}

func TestHeapFreeAndReuse(t *testing.T) {
	h := newHeap()
	b, err := h.AllocateBlock(32, false)
	if err != nil {
		t.Fatalf("AllocateBlock: %v", err)
	}
	h.Free(b)
	// Free never feeds the heap's small-class cache, so the freed block
	// comes back once that cache is used up and the page serves again.
	cached := 0
	for c := h.smallFree[sizeClassOf(32)]; c != nil; c = blockNext(c) {
		cached++
	}
	for i := 0; i < cached; i++ {
		c, err := h.AllocateBlock(32, false)
		if err != nil {
			t.Fatalf("AllocateBlock from cache: %v", err)
		}
		if c == b {
			t.Fatalf("freed block served from the small-class cache")
		}
	}
	b2, err := h.AllocateBlock(32, false)
	if err != nil {
		t.Fatalf("AllocateBlock after free: %v", err)
	}
	if b2 != b {
		t.Fatalf("expected freed block to be reused once the cache is drained, got a different address")
	}
}

func TestThreadFreeTokenRoundTrip(t *testing.T) {
	_, p := newTestPage(t, 2)
	b := pageAllocateBlock(p, false)
	if b == nil {
		t.Fatal("pageAllocateBlock returned nil")
	}

	pagePutThreadFreeBlock(p, b)

	_, count := unpackThreadFree(p.threadFree.Load())
	if count != 1 {
		t.Fatalf("thread free list length = %d, want 1", count)
	}

	usedBefore := p.blockUsed
	pageAdoptThreadFreeList(p)
	if p.blockUsed != usedBefore-1 {
		t.Fatalf("blockUsed after adopt = %d, want %d", p.blockUsed, usedBefore-1)
	}
	if p.localFree != b {
		t.Fatal("adopted thread free list should reinstate the freed block as local free head")
	}
}

func TestBlockToPageRecoversOwningPage(t *testing.T) {
	_, p := newTestPage(t, 5)
	b := pageAllocateBlock(p, false)
	if got := blockToPage(b); got != p {
		t.Fatalf("blockToPage returned %p, want %p", got, p)
	}
	_ = unsafe.Pointer(b)
}
