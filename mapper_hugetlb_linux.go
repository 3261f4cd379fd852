// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package memory

import "golang.org/x/sys/unix"

func mmapHugeTLBFlag() int { return unix.MAP_HUGETLB }
