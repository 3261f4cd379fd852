// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements a thread-caching, lock-free general
// purpose memory allocator.
//
// Every goroutine that calls ThreadInitialize (or any allocation
// function, which calls it implicitly) is bound to a per-thread Heap.
// The heap maintains per-size-class free lists and lazily carves
// blocks out of 256 MiB, naturally aligned spans obtained from the
// OS. Blocks freed by a goroutine other than the one that allocated
// them are queued on a lock-free remote free list and reclaimed by
// the owning heap the next time it allocates from the same page.
//
// Changelog
//
// 2024-03-11 Reworked around a size-class/page/span/heap hierarchy
// with thread-affine heaps and cross-thread free queues.
package memory
