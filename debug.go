// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

// SnapshotLSM is one registry entry as exposed by Pool.Snapshot.
type SnapshotLSM struct {
	Txg     uint64 `json:"txg"`
	NBlocks uint64 `json:"nblocks"`
	MsCount uint64 `json:"mscount"`
}

// SnapshotRow is one summary row as exposed by Pool.Snapshot.
type SnapshotRow struct {
	Start    uint64 `json:"start"`
	End      uint64 `json:"end"`
	TxgCount uint64 `json:"txg_count"`
	MsCount  uint64 `json:"mscount"`
	MsDirty  uint64 `json:"msdirty"`
	BlkCount uint64 `json:"blkcount"`
}

// Snapshot is a point-in-time, JSON-friendly dump of a pool's registry,
// summary queue and stats — consumed by cmd/logsmctl for offline
// inspection, and handy in tests for asserting end-to-end shapes.
type Snapshot struct {
	PoolID string        `json:"pool_id"`
	Stats  Stats         `json:"stats"`
	LSMs   []SnapshotLSM `json:"lsms"`
	Rows   []SnapshotRow `json:"rows"`
}

// Snapshot captures the pool's current registry, summary and stats.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{PoolID: p.ID.String(), Stats: p.Metrics()}
	for _, lsm := range p.registry.All() {
		snap.LSMs = append(snap.LSMs, SnapshotLSM{Txg: lsm.Txg, NBlocks: lsm.NBlocks, MsCount: lsm.MsCount})
	}
	for _, r := range p.summary.Rows() {
		snap.Rows = append(snap.Rows, SnapshotRow{
			Start: r.Start, End: r.End, TxgCount: r.TxgCount,
			MsCount: r.MsCount, MsDirty: r.MsDirty, BlkCount: r.BlkCount,
		})
	}
	return snap
}
