// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !linux

package scheduler

// fixedMemChecker reports a constant total, used on platforms where
// unix.Sysinfo isn't available. A real deployment should supply its
// own MemChecker via Config.
type fixedMemChecker struct{ total uint64 }

// NewSystemMemChecker returns a MemChecker reporting a conservative
// fixed 16 GiB total on non-Linux platforms.
func NewSystemMemChecker() MemChecker { return fixedMemChecker{total: 16 << 30} }

func (f fixedMemChecker) TotalBytes() (uint64, error) { return f.total, nil }
