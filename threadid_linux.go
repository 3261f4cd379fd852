// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package memory

import "golang.org/x/sys/unix"

// currentThreadID identifies the calling OS thread. Go has no
// equivalent of the C allocator's thread-local storage or inline-asm
// thread-register read (original_source/rpmalloc/rpmalloc.c,
// get_thread_id), so this module pins goroutines to OS threads with
// runtime.LockOSThread (see thread.go ThreadInitialize) and keys
// per-thread state off the kernel thread id instead.
func currentThreadID() int64 {
	return int64(unix.Gettid())
}
