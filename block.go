// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "unsafe"

// A block is the minimum addressable allocation unit: a region of
// page.blockSize bytes inside some page. While free, its first
// machine word holds a pointer to the next free block in whichever
// singly linked list currently owns it (a page's local free list, a
// page's remote free list, or a heap's small-class fast list); while
// allocated, every byte belongs to the caller.
//
// blockNext/setBlockNext give the free-list link a name without
// introducing a Go struct on top of raw allocator memory -- the
// teacher's own node type (cznic-memory/memory.go) does the same
// thing for its single free-list shape; this module needs the link
// addressable from several different list kinds so it is expressed as
// plain accessors instead.
type blockLink struct {
	next unsafe.Pointer
}

func blockNext(b unsafe.Pointer) unsafe.Pointer {
	return (*blockLink)(b).next
}

func setBlockNext(b, next unsafe.Pointer) {
	(*blockLink)(b).next = next
}
