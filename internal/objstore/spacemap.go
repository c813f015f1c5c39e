// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package objstore

import (
	"sync"

	"github.com/loglsm/spacemap/internal/base"
)

// MemSpaceMap is a minimal, mutex-guarded base.SpaceMap reference
// implementation: it tracks only the counters the log-space-map engine
// actually consumes (allocated bytes, physical block count), not a
// full on-disk space-map byte stream.
type MemSpaceMap struct {
	mu        sync.Mutex
	blockSize int
	allocated uint64
	nblocks   uint64
}

// NewMemSpaceMap returns an empty space map with the given block size.
func NewMemSpaceMap(blockSize int) *MemSpaceMap {
	return &MemSpaceMap{blockSize: blockSize}
}

// NBlocks implements base.SpaceMap.
func (m *MemSpaceMap) NBlocks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nblocks
}

// Allocated implements base.SpaceMap.
func (m *MemSpaceMap) Allocated() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocated
}

// Apply implements base.SpaceMap: it folds the alloc/free deltas into
// the running allocated total and grows the block count by one entry
// per extent, approximating the original's one-record-per-extent
// on-disk space map.
func (m *MemSpaceMap) Apply(allocs, frees []base.Extent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range allocs {
		m.allocated += e.Len()
		m.nblocks++
	}
	for _, e := range frees {
		if e.Len() > m.allocated {
			return base.CorruptionErrorf("logsm: free of %d bytes exceeds allocated %d", e.Len(), m.allocated)
		}
		m.allocated -= e.Len()
		m.nblocks++
	}
	return nil
}
