// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "errors"

// ErrOutOfMemory is returned when the OS declines a span mapping and
// no OnMapFailure callback is installed to handle it differently.
var ErrOutOfMemory = errors.New("memory: out of memory")

// ErrInvalidArgument is returned for caller errors the allocator can
// detect cheaply: a negative or overflowing size, a non-power-of-two
// alignment, or an alignment the fast aligned-allocation path cannot
// satisfy.
var ErrInvalidArgument = errors.New("memory: invalid argument")
