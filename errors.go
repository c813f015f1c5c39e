// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import "github.com/loglsm/spacemap/internal/base"

// Error sentinels re-exported at the package boundary so callers never
// need to import internal/base directly just to compare with errors.Is.
var (
	ErrCorruption = base.ErrCorruption
	ErrNotFound   = base.ErrNotFound
	ErrBusy       = base.ErrBusy
	ErrShutdown   = base.ErrShutdown
	ErrNoSpace    = base.ErrNoSpace
)
