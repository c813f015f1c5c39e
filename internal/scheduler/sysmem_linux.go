// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build linux

package scheduler

import "golang.org/x/sys/unix"

// sysMemChecker queries total system RAM via unix.Sysinfo, the direct
// Go analogue of the original's `physmem * PAGESIZE`.
type sysMemChecker struct{}

// NewSystemMemChecker returns a MemChecker backed by the kernel's
// sysinfo(2) syscall.
func NewSystemMemChecker() MemChecker { return sysMemChecker{} }

func (sysMemChecker) TotalBytes() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}
