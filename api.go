// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"fmt"
	"os"
	"unsafe"
)

// trace enables verbose stderr logging of every entry point. Left off
// in committed code; flip locally when chasing a reproduction.
const trace = false

func dbg(format string, args ...interface{}) {
	if !trace {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// Alloc returns a block of at least size bytes, uninitialized, using
// the calling goroutine's heap (initializing one if necessary).
func Alloc(size int) (unsafe.Pointer, error) {
	ensureInitialized()
	h := ThreadInitialize()
	p, err := h.AllocateBlock(size, false)
	dbg("memory.Alloc(%d) = %p, %v\n", size, p, err)
	return p, err
}

// Calloc returns a zeroed block sized for count objects of the given
// size, failing with ErrInvalidArgument on overflow.
func Calloc(count, size int) (unsafe.Pointer, error) {
	if count < 0 || size < 0 {
		return nil, ErrInvalidArgument
	}
	total := count * size
	if size != 0 && total/size != count {
		return nil, ErrInvalidArgument
	}
	ensureInitialized()
	h := ThreadInitialize()
	p, err := h.AllocateBlock(total, true)
	dbg("memory.Calloc(%d, %d) = %p, %v\n", count, size, p, err)
	return p, err
}

// AlignedAlloc returns a block of at least size bytes aligned to
// alignment, which must be a power of two.
func AlignedAlloc(size, alignment int) (unsafe.Pointer, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, ErrInvalidArgument
	}
	ensureInitialized()
	h := ThreadInitialize()
	p, err := h.AllocateAligned(size, alignment)
	dbg("memory.AlignedAlloc(%d, %d) = %p, %v\n", size, alignment, p, err)
	return p, err
}

// Realloc resizes the block at ptr to newSize, copying its contents.
// Realloc(nil, n) behaves like Alloc(n); Realloc(ptr, 0) behaves like
// Free(ptr) and returns nil.
func Realloc(ptr unsafe.Pointer, newSize int) (unsafe.Pointer, error) {
	ensureInitialized()
	h := ThreadInitialize()
	p, err := h.Reallocate(ptr, newSize)
	dbg("memory.Realloc(%p, %d) = %p, %v\n", ptr, newSize, p, err)
	return p, err
}

// ReallocAligned resizes the block at ptr to newSize, preserving an
// alignment that AlignedAlloc could have produced. flags may combine
// ReallocNoPreserve and ReallocGrowOrFail to skip the content copy or
// to refuse a move and report ErrInvalidArgument instead.
func ReallocAligned(ptr unsafe.Pointer, alignment, newSize int, flags ReallocFlags) (unsafe.Pointer, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, ErrInvalidArgument
	}
	ensureInitialized()
	h := ThreadInitialize()
	p, err := h.ReallocateAligned(ptr, alignment, newSize, flags)
	dbg("memory.ReallocAligned(%p, %d, %d) = %p, %v\n", ptr, alignment, newSize, p, err)
	return p, err
}

// Free releases a block obtained from any of this package's allocation
// functions. It is safe to call from a different goroutine than the
// one that allocated the block.
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	ensureInitialized()
	h := ThreadInitialize()
	h.Free(ptr)
	dbg("memory.Free(%p)\n", ptr)
}
