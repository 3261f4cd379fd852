// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"fmt"
	"unsafe"
)

// span is a 256 MiB, naturally aligned region obtained from the OS and
// carved up into same-kind pages one at a time as a heap needs them.
// Its own header overlaps page 0's header exactly: the span is never
// addressed through its page field directly, but spanOfPage masks any
// page pointer down to spanMask to recover it, and spanAllocatePage
// returns &s.page unmodified for the first page it hands out. This
// mirrors the upstream C allocator's span_t, whose first field is
// literally a page_t (original_source/rpmalloc/rpmalloc.c around the
// span_t/page_t struct definitions).
type span struct {
	page

	pageInitialized int32
	pageCount       int32
	pageByteSize    int32 // byte size of one page in this span; for a huge span, the whole usable region

	mapOffset  uintptr
	mappedSize uintptr

	next *span
	prev *span
}

// newSpan maps a fresh span for the given page kind and threads its
// page-0 header in place. hugeSize is only meaningful for pageHuge,
// where it sets the size of the span's single page; page 0 gets its
// size class later, from spanAllocatePage.
func newSpan(kind pageKind, huge bool, hugeSize int) (*span, error) {
	size := spanSize
	pageBytes := 0
	switch kind {
	case pageSmall:
		pageBytes = smallPageSize
	case pageMedium:
		pageBytes = mediumPageSize
	case pageLarge:
		pageBytes = largePageSize
	case pageHuge:
		pageBytes = roundup(hugeSize, granularity)
		size = pageBytes
	}

	var ptr unsafe.Pointer
	var offset uintptr
	var mapped uintptr
	for {
		var err error
		ptr, offset, mapped, err = global.mapper.Map(size, spanSize)
		if err == nil {
			break
		}
		if global.config.OnMapFailure == nil || !global.config.OnMapFailure(size, err) {
			return nil, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
	}

	s := (*span)(ptr)
	s.pageByteSize = int32(pageBytes)
	s.mapOffset = offset
	s.mappedSize = mapped
	s.kind = kind
	if kind == pageHuge {
		s.pageCount = 1
	} else {
		s.pageCount = int32(spanSize / pageBytes)
	}
	return s, nil
}

// spanAllocatePage hands out the next never-before-used page in s,
// initializing its header. Returns nil once every page in the span has
// been handed out.
func spanAllocatePage(s *span, h *Heap, sizeClass int32) *page {
	if s.pageInitialized >= s.pageCount {
		return nil
	}

	var p *page
	if s.pageInitialized == 0 {
		p = &s.page
	} else {
		p = (*page)(unsafe.Add(unsafe.Pointer(s), int(s.pageInitialized)*int(s.pageByteSize)))
	}
	s.pageInitialized++

	initPageForClass(p, h, s.kind, sizeClass)
	return p
}

// initPageForClass (re)stamps a page's header for a size class, used
// both for never-before-used pages (spanAllocatePage) and pages being
// recycled out of a heap's free-page list for a different class.
func initPageForClass(p *page, h *Heap, kind pageKind, sizeClass int32) {
	p.sizeClass = sizeClass
	p.blockSize = classTable[sizeClass].blockSize
	p.blockCount = classTable[sizeClass].blockCount
	p.blockInitialized = 0
	p.blockUsed = 0
	p.localFree = nil
	p.localFreeCount = 0
	p.threadFree.Store(0)
	p.kind = kind
	p.isZero = true
	p.isFull = false
	p.isAvailable = false
	p.isFree = false
	p.hasAlignedBlock = false
	p.heap = h
	p.next = nil
	p.prev = nil
}

// blockToPage resolves an in-use pointer back to the page header that
// owns it: mask down to the enclosing span, then, unless the span is a
// one-page huge span, divide the offset by the span's per-page size.
func blockToPage(ptr unsafe.Pointer) *page {
	s := (*span)(unsafe.Pointer(uintptr(ptr) & uintptr(spanMask)))
	if s.kind == pageHuge {
		return &s.page
	}
	offset := uintptr(ptr) - uintptr(unsafe.Pointer(s))
	index := offset / uintptr(s.pageByteSize)
	if index == 0 {
		return &s.page
	}
	return (*page)(unsafe.Add(unsafe.Pointer(s), int(index)*int(s.pageByteSize)))
}

// spanRelease hands a span's whole mapping back to the OS (with release
// false it is only decommitted). Its one caller is the free of a huge
// block; spans of the other kinds are never released.
func spanRelease(s *span, release bool) {
	_ = global.mapper.Unmap(unsafe.Pointer(s), int(s.mappedSize), spanSize, s.mapOffset, s.mappedSize, release)
}
