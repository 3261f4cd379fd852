// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"sync/atomic"
	"unsafe"
)

// Heap is a per-goroutine allocation facade: small-class fast free
// lists, per-size-class available pages, per-kind free and
// remotely-freed page pools, and the spans it is currently carving
// pages out of. Every field below is touched by its owning thread
// only, except thread (read by other threads deciding whether a free
// is local or remote) and pageFreeThread (pushed to by other threads,
// drained only by the owner).
type Heap struct {
	id     int64
	thread atomic.Int64

	smallFree     [smallClassCount]unsafe.Pointer
	pageAvailable [classCount]*page

	pageFree       [pageKindCount]*page
	pageFreeThread [pageKindCount]atomic.Pointer[page]

	spanPartial [pageKindCount]*span
	spanUsed    [pageKindCount]*span

	hugePages bool

	next *Heap // link in the global parked-heap queue
}

func (h *Heap) ownerThread() int64 { return h.thread.Load() }

// heapGetPage returns a page ready to serve an allocation of the given
// size class, following the page-acquisition order of spec §4.3: an
// already available page of this exact class, a fully free page of the same
// kind restamped for this class, a page reclaimed by draining the
// remote free-page stack, or finally a fresh page carved from a span.
func heapGetPage(h *Heap, class int32) (*page, error) {
	if p := h.pageAvailable[class]; p != nil {
		return p, nil
	}

	kind := kindOf(int(class))

	if p := h.pageFree[kind]; p != nil {
		h.pageFree[kind] = p.next
		initPageForClass(p, h, kind, class)
		p.isZero = false // recycled memory still holds old contents
		linkAvailable(h, p)
		return p, nil
	}

	heapDrainPageFreeThread(h, kind)

	if p := h.pageAvailable[class]; p != nil {
		return p, nil
	}
	if p := h.pageFree[kind]; p != nil {
		h.pageFree[kind] = p.next
		initPageForClass(p, h, kind, class)
		p.isZero = false
		linkAvailable(h, p)
		return p, nil
	}

	return heapAllocatePageFromSpan(h, kind, class)
}

func linkAvailable(h *Heap, p *page) {
	p.next = h.pageAvailable[p.sizeClass]
	p.prev = nil
	if p.next != nil {
		p.next.prev = p
	}
	h.pageAvailable[p.sizeClass] = p
	p.isAvailable = true
}

// heapDrainPageFreeThread pops every page queued by remote frees since
// the last drain and resettles each one: fully drained pages go back
// to the free-page pool, partially drained pages go back to the
// available list for their own size class.
func heapDrainPageFreeThread(h *Heap, kind pageKind) {
	stack := &h.pageFreeThread[kind]
	p := stack.Swap(nil)
	for p != nil {
		next := p.next
		pageAdoptThreadFreeList(p)
		if p.blockUsed == 0 {
			p.isFree = true
			p.next = h.pageFree[kind]
			h.pageFree[kind] = p
		} else {
			p.isFull = false
			linkAvailable(h, p)
		}
		p = next
	}
}

func heapAllocatePageFromSpan(h *Heap, kind pageKind, class int32) (*page, error) {
	s := h.spanPartial[kind]
	if s == nil {
		var err error
		s, err = newSpan(kind, h.hugePages, 0)
		if err != nil {
			return nil, err
		}
		h.spanPartial[kind] = s
	}

	p := spanAllocatePage(s, h, class)
	if s.pageInitialized >= s.pageCount {
		h.spanPartial[kind] = nil
		s.next = h.spanUsed[kind]
		if h.spanUsed[kind] != nil {
			h.spanUsed[kind].prev = s
		}
		h.spanUsed[kind] = s
	}

	linkAvailable(h, p)
	return p, nil
}

// AllocateBlock implements the general allocation entry point (spec
// §4.6): huge sizes get a dedicated span, everything else is served
// from the heap's small-class cache or from a page of the right size
// class.
func (h *Heap) AllocateBlock(size int, zero bool) (unsafe.Pointer, error) {
	if size < 0 {
		return nil, ErrInvalidArgument
	}
	if size == 0 {
		size = 1
	}
	if size > largeBlockLimit {
		return heapAllocateHuge(h, size, zero)
	}

	class := int32(sizeClassOf(size))
	if int(class) < smallClassCount && h.smallFree[class] != nil {
		b := h.smallFree[class]
		h.smallFree[class] = blockNext(b)
		if zero {
			clear(unsafe.Slice((*byte)(b), classTable[class].blockSize))
		}
		return b, nil
	}

	p, err := heapGetPage(h, class)
	if err != nil {
		return nil, err
	}
	return pageAllocateBlock(p, zero), nil
}

func heapAllocateHuge(h *Heap, size int, zero bool) (unsafe.Pointer, error) {
	s, err := newSpan(pageHuge, h.hugePages, size+pageHeaderBytes)
	if err != nil {
		return nil, err
	}
	p := &s.page
	p.sizeClass = -1
	p.blockSize = int32(int(s.pageByteSize) - pageHeaderBytes)
	p.blockCount = 1
	p.blockInitialized = 1
	p.blockUsed = 1
	p.kind = pageHuge
	p.heap = h
	// the mapping is freshly obtained from the OS: always zero already.
	_ = zero
	return blockStart(p), nil
}

// AllocateAligned implements the aligned allocation entry point (spec
// §4.6). Alignments up to granularity need nothing special; alignments
// up to maxAlignment are served by over-allocating and realigning
// within the block; anything larger is rejected, matching the upstream
// allocator's own disabled oversize-alignment path (see DESIGN.md).
func (h *Heap) AllocateAligned(size, alignment int) (unsafe.Pointer, error) {
	if size < 0 {
		return nil, ErrInvalidArgument
	}
	if alignment <= granularity {
		return h.AllocateBlock(size, false)
	}
	if alignment > maxAlignment {
		return nil, ErrInvalidArgument
	}

	total := size + alignment
	block, err := h.AllocateBlock(total, false)
	if err != nil {
		return nil, err
	}

	aligned := unsafe.Pointer(roundupPtr(uintptr(block), uintptr(alignment)))
	if aligned == block {
		return block, nil
	}
	blockToPage(block).hasAlignedBlock = true
	return aligned, nil
}

// ReallocFlags modifies Heap.ReallocateAligned's behavior, mirroring
// the upstream allocator's RPMALLOC_NO_PRESERVE/RPMALLOC_GROW_OR_FAIL
// flags to rprealloc/rpaligned_realloc (spec.md §6,
// original_source/rpmalloc/rpmalloc.c:1434 heap_reallocate_block_aligned).
type ReallocFlags uint32

const (
	// ReallocNoPreserve skips copying the old block's contents into
	// the new one when a move is required, for callers that are about
	// to overwrite the whole block anyway.
	ReallocNoPreserve ReallocFlags = 1 << iota
	// ReallocGrowOrFail returns ErrInvalidArgument instead of moving
	// the block when the request cannot be satisfied by the existing
	// allocation in place.
	ReallocGrowOrFail
)

// Reallocate implements the realloc entry point (spec §4.6), including
// the anti-hysteresis growth bound and the in-place fast path ported
// from the upstream allocator (SPEC_FULL.md, supplemented features 5
// and 6).
func (h *Heap) Reallocate(ptr unsafe.Pointer, newSize int) (unsafe.Pointer, error) {
	return h.reallocate(ptr, newSize, 0)
}

func (h *Heap) reallocate(ptr unsafe.Pointer, newSize int, flags ReallocFlags) (unsafe.Pointer, error) {
	if ptr == nil {
		return h.AllocateBlock(newSize, false)
	}
	if newSize < 0 {
		return nil, ErrInvalidArgument
	}
	if newSize == 0 {
		h.Free(ptr)
		return nil, nil
	}

	oldUsable := UsableSize(ptr)
	if newSize <= oldUsable && (flags&ReallocGrowOrFail != 0 || newSize >= oldUsable/2) {
		return ptr, nil
	}
	if flags&ReallocGrowOrFail != 0 {
		return nil, ErrInvalidArgument
	}

	grown := newSize
	if g := oldUsable + oldUsable/4 + oldUsable/8; g > grown {
		grown = g
	}

	newPtr, err := h.AllocateBlock(grown, false)
	if err != nil {
		return nil, err
	}

	if flags&ReallocNoPreserve == 0 {
		copySize := oldUsable
		if newSize < copySize {
			copySize = newSize
		}
		copy(unsafe.Slice((*byte)(newPtr), copySize), unsafe.Slice((*byte)(ptr), copySize))
	}
	h.Free(ptr)
	return newPtr, nil
}

// ReallocateAligned implements the aligned realloc entry point (spec
// §4.6, §6): the same growth bound and in-place fast path as
// Reallocate, but honoring an explicit alignment and the
// NoPreserve/GrowOrFail flags. Alignments at or below granularity fall
// through to the plain path since every block is already granularity
// aligned.
func (h *Heap) ReallocateAligned(ptr unsafe.Pointer, alignment, newSize int, flags ReallocFlags) (unsafe.Pointer, error) {
	if alignment <= granularity {
		return h.reallocate(ptr, newSize, flags)
	}
	if ptr == nil {
		return h.AllocateAligned(newSize, alignment)
	}
	if newSize < 0 {
		return nil, ErrInvalidArgument
	}
	if newSize == 0 {
		h.Free(ptr)
		return nil, nil
	}

	oldUsable := UsableSize(ptr)
	alreadyAligned := uintptr(ptr)%uintptr(alignment) == 0
	if alreadyAligned && newSize <= oldUsable && (flags&ReallocGrowOrFail != 0 || newSize >= oldUsable/2) {
		return ptr, nil
	}
	if flags&ReallocGrowOrFail != 0 {
		return nil, ErrInvalidArgument
	}

	grown := newSize
	if g := oldUsable + oldUsable/4 + oldUsable/8; g > grown {
		grown = g
	}

	newPtr, err := h.AllocateAligned(grown, alignment)
	if err != nil {
		return nil, err
	}

	if flags&ReallocNoPreserve == 0 {
		copySize := oldUsable
		if newSize < copySize {
			copySize = newSize
		}
		copy(unsafe.Slice((*byte)(newPtr), copySize), unsafe.Slice((*byte)(ptr), copySize))
	}
	h.Free(ptr)
	return newPtr, nil
}

// Free implements the deallocation entry point (spec §4.7). It always
// goes through the page-level free path (pageDeallocateBlock), which
// tells local frees from remote ones apart and maintains
// page.localFree/blockUsed so a fully freed page is unlinked and
// pushed onto heap.pageFree[kind] for reuse by any size class.
// smallFree is populated only at allocation time (pagePushLocalFreeToHeap),
// never by Free.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	p := blockToPage(ptr)
	if p.hasAlignedBlock {
		start := blockStart(p)
		offset := uintptr(ptr) - uintptr(start)
		ptr = unsafe.Add(ptr, -int(offset%uintptr(p.blockSize)))
	}
	pageDeallocateBlock(p, ptr)
}

// UsableSize implements the usable-size query (spec §4.6).
func UsableSize(ptr unsafe.Pointer) int {
	if ptr == nil {
		return 0
	}
	p := blockToPage(ptr)
	if p.hasAlignedBlock {
		offset := (uintptr(ptr) - uintptr(blockStart(p))) % uintptr(p.blockSize)
		return int(p.blockSize) - int(offset)
	}
	return int(p.blockSize)
}
