// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"testing"

	"github.com/loglsm/spacemap/internal/objstore"
	"github.com/loglsm/spacemap/internal/scheduler"
	"github.com/stretchr/testify/require"
)

type fakeMem struct{ total uint64 }

func (f fakeMem) TotalBytes() (uint64, error) { return f.total, nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Mem = fakeMem{total: 64 << 30}
	return cfg
}

func newTestPool(t *testing.T) (*Pool, *objstore.MemStore) {
	t.Helper()
	store := objstore.NewMemStore()
	txgMap := objstore.NewMemKeyMap()
	return NewPool(testConfig(), store, txgMap), store
}

func TestAllocateOpensLSMAndTracksMetaslab(t *testing.T) {
	pool, _ := newTestPool(t)
	sm := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 0}, sm)

	require.NoError(t, pool.Allocate(0, 0, 8192, 100))

	snap := pool.Snapshot()
	require.Len(t, snap.LSMs, 1)
	require.Equal(t, uint64(100), snap.LSMs[0].Txg)
	require.Equal(t, uint64(1), snap.LSMs[0].MsCount)

	require.Len(t, snap.Rows, 1)
	row := snap.Rows[0]
	require.Equal(t, uint64(100), row.Start)
	require.Equal(t, uint64(100), row.End)
	require.Equal(t, uint64(1), row.MsCount)
	require.Equal(t, uint64(1), row.MsDirty)
}

// A metaslab dirtied in the same TXG that is about to sync must not be
// flushed by that sync: Sync only drains metaslabs whose watermark
// precedes the syncing TXG.
func TestSyncDoesNotFlushMetaslabDirtiedThisTxg(t *testing.T) {
	pool, _ := newTestPool(t)
	sm := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 0}, sm)

	require.NoError(t, pool.Allocate(0, 0, 8192, 100))
	require.NoError(t, pool.Sync(100))

	snap := pool.Snapshot()
	require.Len(t, snap.LSMs, 1, "the txg-100 LSM must still be referenced")
	require.Equal(t, uint64(1), snap.LSMs[0].MsCount)
	require.Equal(t, uint64(1), pool.Metrics().NBlocks)
	require.Equal(t, uint64(0), sm.Allocated(), "nothing drained into the space map yet")
}

// TestSyncFlushesOnceTxgAdvances drives a second TXG forward so the
// metaslab dirtied at 100 becomes eligible, verifying it drains into
// the space map and its watermark/summary accounting moves to the new
// syncing LSM, and that the now-unreferenced txg-100 LSM is reclaimed.
func TestSyncFlushesOnceTxgAdvances(t *testing.T) {
	pool, store := newTestPool(t)
	sm := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 0}, sm)

	require.NoError(t, pool.Allocate(0, 0, 8192, 100))
	require.NoError(t, pool.Sync(100))
	require.NoError(t, pool.Sync(101))

	require.Equal(t, uint64(8192), sm.Allocated())

	snap := pool.Snapshot()
	require.Len(t, snap.LSMs, 1, "txg 100's LSM must be reclaimed once nothing references it")
	require.Equal(t, uint64(101), snap.LSMs[0].Txg)
	require.Equal(t, uint64(1), snap.LSMs[0].MsCount, "the flushed metaslab's watermark now names txg 101")

	_, err := store.Length(1) // MemStore hands out sequential ids starting at 1.
	require.Error(t, err, "the txg-100 object itself must be removed from the backing store")
}

// An allocation immediately cancelled by a free of the identical extent
// in the same TXG must drain to a no-op against the space map.
func TestAllocateThenFreeSameExtentCancelsOut(t *testing.T) {
	pool, _ := newTestPool(t)
	sm := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 0}, sm)

	require.NoError(t, pool.Allocate(0, 0, 4096, 100))
	require.NoError(t, pool.Free(0, 0, 4096, 100))
	require.NoError(t, pool.Sync(100))
	require.NoError(t, pool.Sync(101))

	require.Equal(t, uint64(0), sm.Allocated())
}

// Two metaslabs dirtied in different TXGs: once both have flushed past
// their originating LSM, that LSM is reclaimed.
func TestReclaimDropsLSMOnceAllDependentsFlush(t *testing.T) {
	pool, _ := newTestPool(t)
	smA := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	smB := objstore.NewMemSpaceMap(pool.cfg.BlockSize)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 0}, smA)
	pool.AddMetaslab(MetaslabKey{Vdev: 0, ID: 1}, smB)

	require.NoError(t, pool.Allocate(0, 0, 4096, 100))
	require.NoError(t, pool.Sync(100))
	require.NoError(t, pool.Allocate(0, 1<<30, 4096, 101))
	require.NoError(t, pool.Sync(101))

	// Sync(101) already flushed metaslab 0 (the only one referencing txg
	// 100), so txg 100's LSM is gone and only txg 101's remains.
	snapBefore := pool.Snapshot()
	require.Len(t, snapBefore.LSMs, 1)

	require.NoError(t, pool.Sync(102))

	snap := pool.Snapshot()
	require.Len(t, snap.LSMs, 1)
	require.Equal(t, uint64(102), snap.LSMs[0].Txg)
	require.Equal(t, uint64(8192), smA.Allocated()+smB.Allocated())
}

func TestDefaultTunablesMatchOriginal(t *testing.T) {
	tun := scheduler.DefaultTunables()
	require.Equal(t, uint64(1000), tun.MaxMemPPM)
	require.Equal(t, uint64(1)<<30, tun.MaxMemAmt)
}
