// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsMapper struct {
	pageSize  int
	hugePages bool
}

func newPlatformMapper(cfg Config) MemoryMapper {
	if cfg.MemoryMapper != nil {
		return cfg.MemoryMapper
	}
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	return &windowsMapper{
		pageSize:  int(info.PageSize),
		hugePages: cfg.HugePages,
	}
}

func (m *windowsMapper) PageSize() int { return m.pageSize }

// Map reserves a region large enough to carve an aligned subrange out
// of, the same over-reserve-then-align approach as the POSIX mapper,
// since VirtualAlloc offers no alignment parameter of its own.
func (m *windowsMapper) Map(size, alignment int) (unsafe.Pointer, uintptr, uintptr, error) {
	reserve := size
	if alignment > m.pageSize {
		reserve += alignment
	}

	addr, err := windows.VirtualAlloc(0, uintptr(reserve), windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("memory: VirtualAlloc %d bytes: %w", reserve, err)
	}

	aligned := roundupPtr(addr, uintptr(alignment))
	offset := aligned - addr

	return unsafe.Pointer(aligned), offset, uintptr(reserve), nil
}

func (m *windowsMapper) Unmap(ptr unsafe.Pointer, size int, alignment int, offset uintptr, mappedSize uintptr, release bool) error {
	base := uintptr(ptr) - offset
	if !release {
		return windows.VirtualFree(base, mappedSize, windows.MEM_DECOMMIT)
	}
	return windows.VirtualFree(base, 0, windows.MEM_RELEASE)
}

func (m *windowsMapper) Decommit(ptr unsafe.Pointer, size int) {
	_ = windows.VirtualFree(uintptr(ptr), uintptr(size), windows.MEM_DECOMMIT)
}
