// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

type unixMapper struct {
	pageSize  int
	hugePages bool
}

func newPlatformMapper(cfg Config) MemoryMapper {
	if cfg.MemoryMapper != nil {
		return cfg.MemoryMapper
	}
	return &unixMapper{
		pageSize:  unix.Getpagesize(),
		hugePages: cfg.HugePages,
	}
}

func (m *unixMapper) PageSize() int { return m.pageSize }

// Map reserves size+alignment bytes with a single mmap and returns the
// first alignment boundary inside it. The unaligned head and tail stay
// mapped; offset and mappedSize record the true mapping bounds for
// Unmap.
func (m *unixMapper) Map(size, alignment int) (unsafe.Pointer, uintptr, uintptr, error) {
	reserve := size
	if alignment > m.pageSize {
		reserve += alignment
	}

	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if m.hugePages {
		flags |= mmapHugeTLBFlag()
	}

	data, err := unix.Mmap(-1, 0, reserve, prot, flags)
	if err != nil && m.hugePages {
		// huge page reservations can fail for lack of a pool; retry
		// without them rather than fail the whole allocation.
		data, err = unix.Mmap(-1, 0, reserve, prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("memory: mmap %d bytes: %w", reserve, err)
	}

	base := uintptr(unsafe.Pointer(&data[0]))
	aligned := roundupPtr(base, uintptr(alignment))
	offset := aligned - base

	return unsafe.Pointer(aligned), offset, uintptr(reserve), nil
}

func (m *unixMapper) Unmap(ptr unsafe.Pointer, size int, alignment int, offset uintptr, mappedSize uintptr, release bool) error {
	base := uintptr(ptr) - offset
	data := unsafe.Slice((*byte)(unsafe.Pointer(base)), mappedSize)
	if !release {
		return unix.Madvise(data, unix.MADV_DONTNEED)
	}
	return unix.Munmap(data)
}

func (m *unixMapper) Decommit(ptr unsafe.Pointer, size int) {
	data := unsafe.Slice((*byte)(ptr), size)
	_ = unix.Madvise(data, unix.MADV_DONTNEED)
}
