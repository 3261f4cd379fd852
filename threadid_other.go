// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux && !windows

package memory

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the running goroutine's id on
// platforms without a cheap kernel thread id syscall in
// golang.org/x/sys/unix (Gettid is Linux-only there). Combined with
// runtime.LockOSThread in ThreadInitialize this is exact for the
// allocator's purposes: a goroutine that never migrates threads
// behaves identically whether keyed by goroutine id or OS thread id.
func currentThreadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
