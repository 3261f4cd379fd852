// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "unsafe"

// MemoryMapper is the seam between the allocator and the operating
// system's virtual memory calls. The zero-value Config uses the
// platform default (mmap/munmap/madvise on POSIX, VirtualAlloc on
// Windows, see mapper_unix.go / mapper_windows.go); tests and callers
// that need deterministic or instrumented memory supply their own.
type MemoryMapper interface {
	// Map reserves at least size bytes aligned to alignment. It may
	// reserve more than requested to obtain the alignment; offset is
	// how far the returned pointer is from the start of the true
	// mapping and mappedSize is the true mapping's length, both of
	// which Unmap needs back unchanged.
	Map(size, alignment int) (ptr unsafe.Pointer, offset uintptr, mappedSize uintptr, err error)

	// Unmap releases a region obtained from Map. If release is false
	// the memory is only decommitted (madvise MADV_DONTNEED / Windows
	// MEM_DECOMMIT): physical pages are given back but the address
	// range stays reserved for reuse. If release is true the address
	// range itself is returned to the OS.
	Unmap(ptr unsafe.Pointer, size int, alignment int, offset uintptr, mappedSize uintptr, release bool) error

	// Decommit gives physical pages within an already-mapped region
	// back to the OS without releasing the address range.
	Decommit(ptr unsafe.Pointer, size int)

	// PageSize returns the OS virtual memory page size.
	PageSize() int
}

// Config controls process-wide allocator behavior. A zero Config
// selects the platform default mapper with no huge pages, and a map
// failure surfaces as ErrOutOfMemory.
type Config struct {
	// MemoryMapper overrides the platform default. Mainly for tests.
	MemoryMapper MemoryMapper

	// OnMapFailure is invoked (if non-nil) whenever a span mapping
	// fails. Returning true retries the mapping; returning false (or a
	// nil callback) surfaces ErrOutOfMemory to the caller, mirroring
	// the upstream allocator's map-fail handler, which a caller can use
	// to free memory elsewhere and ask for a retry (spec §4.1).
	OnMapFailure func(size int, err error) bool

	// HugePages requests OS huge pages (MAP_HUGETLB) for span mappings
	// made by the default mapper on Linux. The default mappers of other
	// platforms, Windows included, ignore it.
	HugePages bool
}

type globalState struct {
	mapper MemoryMapper
	config Config
}

var global globalState

func init() {
	global.mapper = newPlatformMapper(Config{})
}
