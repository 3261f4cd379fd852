// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux && !windows

package memory

// mmapHugeTLBFlag is a no-op on platforms without MAP_HUGETLB; huge
// pages are requested through other means (or not at all) there.
func mmapHugeTLBFlag() int { return 0 }
