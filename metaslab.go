// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"sync"

	"github.com/loglsm/spacemap/internal/base"
	"github.com/loglsm/spacemap/internal/unflushed"
)

// MetaslabKey identifies a metaslab by the vdev it belongs to and its
// index within that vdev's address space.
type MetaslabKey struct {
	Vdev uint32
	ID   uint64
}

// Metaslab is a single metaslab's unflushed-change tracking state: its
// own on-disk space map plus the pending change set not yet drained
// into it. mu guards Changes and must be acquired after Pool.mu,
// matching the ms_sync_lock/ms_lock ordering of the original (spec.md
// §5).
type Metaslab struct {
	Key     MetaslabKey
	SM      base.SpaceMap
	mu      sync.Mutex
	Changes unflushed.Changes
}

// Tracked reports whether this metaslab currently has a live watermark
// (has been dirtied at least once and not yet torn down).
func (m *Metaslab) Tracked() bool { return m.Changes.Txg != 0 }
