// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	heapIDSeq      atomic.Int64
	defaultHeap    atomic.Pointer[Heap]
	parkedHeapsMu  sync.Mutex
	parkedHeaps    *Heap
	threadHeapsMu  sync.RWMutex
	threadHeaps    = map[int64]*Heap{}
	allocatorHuge  atomic.Bool
	initializedVal atomic.Bool
)

// Initialize prepares process-wide allocator state from cfg. It is
// optional: the first allocation call initializes with a zero Config
// if the caller never calls it explicitly, exactly like the upstream
// allocator's implicit first-use initialization.
func Initialize(cfg Config) {
	global.config = cfg
	global.mapper = newPlatformMapper(cfg)
	allocatorHuge.Store(cfg.HugePages)
	initializedVal.Store(true)
}

// Finalize drops the parked heap queue, the defaultHeap slot and every
// goroutine-to-heap binding, and marks the allocator uninitialized. No
// span is unmapped: the memory those heaps hold stays mapped. A
// goroutine that allocates afterward is bound to a new heap, and the
// first allocation call re-initializes implicitly.
func Finalize() {
	parkedHeapsMu.Lock()
	parkedHeaps = nil
	parkedHeapsMu.Unlock()

	threadHeapsMu.Lock()
	threadHeaps = map[int64]*Heap{}
	threadHeapsMu.Unlock()

	defaultHeap.Store(nil)
	initializedVal.Store(false)
}

// IsThreadInitialized reports whether the calling goroutine already
// has a heap bound to it.
func IsThreadInitialized() bool {
	threadHeapsMu.RLock()
	_, ok := threadHeaps[currentThreadID()]
	threadHeapsMu.RUnlock()
	return ok
}

// ThreadInitialize binds the calling goroutine to a Heap, creating one
// if necessary. It pins the goroutine to its current OS thread with
// runtime.LockOSThread, the closest Go equivalent of the thread
// affinity the upstream allocator gets for free from a _Thread_local
// heap pointer (SPEC_FULL.md, domain stack notes on thread identity).
func ThreadInitialize() *Heap {
	tid := currentThreadID()

	threadHeapsMu.RLock()
	h, ok := threadHeaps[tid]
	threadHeapsMu.RUnlock()
	if ok {
		return h
	}

	// Lock only when binding, so the single UnlockOSThread in
	// ThreadFinalize undoes it.
	runtime.LockOSThread()
	tid = currentThreadID()

	h = acquireHeap()
	h.thread.Store(tid)

	threadHeapsMu.Lock()
	threadHeaps[tid] = h
	threadHeapsMu.Unlock()
	return h
}

// ThreadFinalize releases the calling goroutine's heap back to the
// parked pool for reuse by a future goroutine, and unpins it from its
// OS thread.
func ThreadFinalize() {
	tid := currentThreadID()

	threadHeapsMu.Lock()
	h, ok := threadHeaps[tid]
	if ok {
		delete(threadHeaps, tid)
	}
	threadHeapsMu.Unlock()

	if !ok {
		return
	}

	h.thread.Store(0)
	releaseHeap(h)

	runtime.UnlockOSThread()
}

// acquireHeap hands out a heap for a newly initializing goroutine,
// checking progressively more expensive sources: the single-slot
// defaultHeap fast path (populated by whichever goroutine released a
// heap most recently, consumed lock-free by whichever acquires next),
// the mutex-guarded parked queue, and finally a brand new heap.
func acquireHeap() *Heap {
	if h := defaultHeap.Swap(nil); h != nil {
		return h
	}

	parkedHeapsMu.Lock()
	if h := parkedHeaps; h != nil {
		parkedHeaps = h.next
		parkedHeapsMu.Unlock()
		h.next = nil
		return h
	}
	parkedHeapsMu.Unlock()

	return newHeap()
}

// releaseHeap parks h for reuse by a future goroutine, preferring the
// single-slot defaultHeap fast path over the mutex-guarded queue. Every
// goroutine finalizing around the same time races the CAS on
// defaultHeap; at most one wins the fast slot, every loser falls
// through to the locked parked queue (SPEC_FULL.md, supplemented
// feature 7).
func releaseHeap(h *Heap) {
	h.next = nil
	if defaultHeap.CompareAndSwap(nil, h) {
		return
	}

	parkedHeapsMu.Lock()
	h.next = parkedHeaps
	parkedHeaps = h
	parkedHeapsMu.Unlock()
}

func newHeap() *Heap {
	h := &Heap{hugePages: allocatorHuge.Load()}
	h.id = heapIDSeq.Add(1)
	return h
}

func ensureInitialized() {
	if initializedVal.CompareAndSwap(false, true) {
		global.mapper = newPlatformMapper(global.config)
	}
}
