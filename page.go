// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"sync/atomic"
	"unsafe"
)

// page holds every block of a single size class carved out of one
// span. It lives at the very start of a page.kind-sized region:
// for page 0 of a span that region is shared with the span header
// itself (see span.go), for every other page it is a bare page-sized
// slot obtained by bump-allocating the span.
//
// Fields written only by the owning heap (localFree, localFreeCount,
// blockInitialized, blockUsed, the flags, next/prev) are never
// synchronized: the concurrency contract (spec §4.3) is that only the
// owner thread ever touches them. threadFree is the one field mutated
// by remote frees, exclusively through atomic compare-and-swap.
type page struct {
	localFree      unsafe.Pointer // head of owner-only free list, nil if empty
	localFreeCount int32
	threadFree     atomic.Uint64 // packed (blockIndex low32, listLength high32)

	sizeClass        int32
	blockSize        int32
	blockCount       int32
	blockInitialized int32
	blockUsed        int32

	kind pageKind

	isFull          bool
	isAvailable     bool
	isFree          bool
	isZero          bool
	hasAlignedBlock bool

	heap *Heap
	next *page
	prev *page
}

// pageHeaderBytes is the rounded-up size of the larger of page and
// span, rounded up to block granularity -- the offset at which block
// data begins within any page-sized slot. The spec's nominal 128 B
// header budget is a C struct-layout artifact; a Go struct of
// equivalent fields does not generally land on exactly 128 bytes, so
// this module computes the real budget the way the teacher computes
// its own headerSize (cznic-memory/memory.go) rather than hard-coding
// a constant that might undersize the header.
var pageHeaderBytes = func() int {
	p := roundup(int(unsafe.Sizeof(page{})), granularity)
	s := roundup(int(unsafe.Sizeof(span{})), granularity)
	if s > p {
		p = s
	}
	return p
}()

func blockStart(p *page) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(p), pageHeaderBytes)
}

func blockAt(p *page, index int32) unsafe.Pointer {
	return unsafe.Add(blockStart(p), int(index)*int(p.blockSize))
}

func blockIndexOf(p *page, b unsafe.Pointer) int32 {
	diff := uintptr(b) - uintptr(blockStart(p))
	return int32(diff / uintptr(p.blockSize))
}

func packThreadFree(index, count uint32) uint64 {
	return uint64(count)<<32 | uint64(index)
}

func unpackThreadFree(tok uint64) (index, count uint32) {
	return uint32(tok), uint32(tok >> 32)
}

// spanOfPage returns the span enclosing p by masking its address down
// to the span alignment.
func spanOfPage(p *page) *span {
	return (*span)(unsafe.Pointer(uintptr(unsafe.Pointer(p)) & uintptr(spanMask)))
}

func pageSize(p *page) int {
	if p.kind == pageHuge {
		return spanOfPage(p).pageByteSize
	}
	return pageSizeOf(p.kind)
}

// pageGetLocalFreeBlock pops the head of the owner-only free list.
func pageGetLocalFreeBlock(p *page) unsafe.Pointer {
	b := p.localFree
	if b == nil {
		return nil
	}
	p.localFree = blockNext(b)
	p.localFreeCount--
	p.blockUsed++
	return b
}

// pageAdoptThreadFreeList moves the remotely freed blocks queued on
// threadFree onto the owner-only local free list (spec §4.3 step 2).
func pageAdoptThreadFreeList(p *page) {
	tok := p.threadFree.Load()
	if tok == 0 {
		return
	}
	for !p.threadFree.CompareAndSwap(tok, 0) {
		tok = p.threadFree.Load()
		if tok == 0 {
			return
		}
	}
	index, count := unpackThreadFree(tok)
	if count == 0 {
		return
	}
	p.localFree = blockAt(p, int32(index))
	p.localFreeCount = int32(count)
	p.blockUsed -= int32(count)
}

// pageGetThreadFreeBlock adopts the remote free list if non-empty and
// pops one block from the (now possibly repopulated) local list.
func pageGetThreadFreeBlock(p *page) unsafe.Pointer {
	pageAdoptThreadFreeList(p)
	b := p.localFree
	if b == nil {
		return nil
	}
	p.localFree = blockNext(b)
	p.localFreeCount--
	p.blockUsed++
	return b
}

// pageEvictMemoryPages decommits everything beyond the page's first OS
// page once at least half its blocks have ever been carved out --
// matching the teacher's eager-linking heuristic upstream of this
// (pageInitializeBlocks) with a symmetric release on the way out.
func pageEvictMemoryPages(p *page) {
	if int(p.blockInitialized) < int(p.blockCount)/2 {
		return
	}
	osPage := global.mapper.PageSize()
	size := pageSize(p)
	if size <= osPage {
		return
	}
	extra := unsafe.Add(unsafe.Pointer(p), osPage)
	global.mapper.Decommit(extra, size-osPage)
}

// pagePutLocalFreeBlock frees a block back to the owning page from the
// owner thread (spec §4.3 step 2).
func pagePutLocalFreeBlock(p *page, b unsafe.Pointer) {
	setBlockNext(b, p.localFree)
	p.localFree = b
	p.localFreeCount++
	p.blockUsed--

	h := p.heap
	if p.blockUsed == 0 {
		if p.isAvailable {
			unlinkAvailable(h, p)
		}
		p.isAvailable = false
		p.isFull = false
		p.isFree = true
		pageEvictMemoryPages(p)
		p.next = h.pageFree[p.kind]
		p.prev = nil
		h.pageFree[p.kind] = p
	} else if p.isFull {
		p.isFull = false
		linkAvailable(h, p)
	}
}

func unlinkAvailable(h *Heap, p *page) {
	if h.pageAvailable[p.sizeClass] == p {
		h.pageAvailable[p.sizeClass] = p.next
	} else if p.prev != nil {
		p.prev.next = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	}
	p.next = nil
	p.prev = nil
}

// pagePutThreadFreeBlock CAS-pushes a remotely freed block onto p's
// thread free list, returning the page to the owner's free-page stack
// once every block has been drained this way.
func pagePutThreadFreeBlock(p *page, b unsafe.Pointer) {
	index := blockIndexOf(p, b)
	prev := p.threadFree.Load()
	for {
		prevIndex, prevCount := unpackThreadFree(prev)
		if prevCount != 0 {
			setBlockNext(b, blockAt(p, int32(prevIndex)))
		} else {
			setBlockNext(b, nil)
		}
		next := packThreadFree(uint32(index), prevCount+1)
		if p.threadFree.CompareAndSwap(prev, next) {
			if prevCount+1 >= uint32(p.blockCount) {
				pushPageFreeThread(p)
			}
			return
		}
		prev = p.threadFree.Load()
	}
}

func pushPageFreeThread(p *page) {
	pageEvictMemoryPages(p)
	h := p.heap
	stack := &h.pageFreeThread[p.kind]
	for {
		old := stack.Load()
		p.next = old
		if stack.CompareAndSwap(old, p) {
			return
		}
	}
}

// pagePushLocalFreeToHeap hoists a small-class page's local free list
// onto the heap's fast per-class cache (spec §4.3 step 4, and spec §9
// "local free list hoist").
func pagePushLocalFreeToHeap(p *page) {
	if int(p.sizeClass) >= smallClassCount || p.localFree == nil {
		return
	}
	p.heap.smallFree[p.sizeClass] = p.localFree
	p.blockUsed += p.localFreeCount
	p.localFree = nil
	p.localFreeCount = 0
}

// pageInitializeBlocks bump-carves one new block from virgin page
// memory. For small pages with a sub-half-OS-page block size, every
// remaining block on the same OS page is carved and linked into the
// local free list in the same pass, amortizing future allocations.
func pageInitializeBlocks(p *page) unsafe.Pointer {
	block := blockAt(p, p.blockInitialized)
	p.blockInitialized++
	p.blockUsed++

	if p.kind == pageSmall && int(p.blockSize) < global.mapper.PageSize()/2 {
		osPage := uintptr(global.mapper.PageSize())
		memPageStart := uintptr(block) &^ (osPage - 1)
		memPageNext := memPageStart + osPage

		var first, last unsafe.Pointer
		free := unsafe.Add(block, int(p.blockSize))
		for uintptr(free) < memPageNext && p.blockInitialized < p.blockCount {
			if last != nil {
				setBlockNext(last, free)
			} else {
				first = free
			}
			last = free
			free = unsafe.Add(free, int(p.blockSize))
			p.blockInitialized++
			p.localFreeCount++
		}
		if first != nil {
			setBlockNext(last, nil)
			p.localFree = first
		} else {
			p.localFreeCount = 0
		}
	}
	return block
}

// pageAllocateBlock implements the full page-level allocate path of
// spec §4.3: local free list, then adopted remote free list, then
// bump initialization, followed by the heap-level small hoist and the
// available/full transition.
func pageAllocateBlock(p *page, zero bool) unsafe.Pointer {
	isZero := false
	block := pageGetLocalFreeBlock(p)
	if block == nil {
		block = pageGetThreadFreeBlock(p)
		if block == nil {
			block = pageInitializeBlocks(p)
			isZero = p.isZero
		}
	}

	pagePushLocalFreeToHeap(p)

	if p.blockUsed == p.blockCount {
		pageAdoptThreadFreeList(p)
	}

	if p.blockUsed == p.blockCount {
		if p.isAvailable {
			unlinkAvailable(p.heap, p)
		}
		p.isFull = true
		p.isZero = false
		p.isAvailable = false
	}

	if zero && !isZero && block != nil {
		clear(unsafe.Slice((*byte)(block), p.blockSize))
	}
	return block
}

// pageDeallocateBlock is the page-level half of the free entry point
// (spec §4.3 step 1-4 / §4.7).
func pageDeallocateBlock(p *page, block unsafe.Pointer) {
	if p.kind == pageHuge {
		spanRelease(spanOfPage(p), true)
		return
	}

	if p.heap != nil && p.heap.ownerThread() == currentThreadID() {
		pagePutLocalFreeBlock(p, block)
	} else {
		pagePutThreadFreeBlock(p, block)
	}
}
