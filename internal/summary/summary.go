// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package summary implements the log-space-map summary queue (C5) of
// spec.md §4.5: an ordered, amortized aggregation of per-TXG block and
// metaslab counts so the flush scheduler (internal/scheduler) never has
// to walk the full per-TXG registry.
package summary

import "github.com/loglsm/spacemap/internal/base"

// Row is one entry of the summary queue: an aggregate over the
// contiguous TXG range [Start, End] of how many blocks those TXGs'
// LSMs hold and how many metaslabs (dirty or not) they're referenced
// by.
type Row struct {
	Start, End uint64
	TxgCount   uint64
	MsCount    uint64
	MsDirty    uint64
	BlkCount   uint64
}

// Limits bounds how large a single Row is allowed to grow, mirroring
// the zfs_max_logsm_summary_length / zfs_unflushed_log_txg_max /
// block-limit tunables that feed summary_entry_is_full.
type Limits struct {
	MaxRows      uint64
	MaxTxgPerRow uint64 // ceil(unflushed log txg max / max rows)
	BlockLimit   uint64 // current spa_log_sm_blocklimit()
}

// Queue is the ordered (oldest-first) sequence of summary Rows.
type Queue struct {
	rows []*Row
}

// Rows returns the queue's rows, oldest first. Callers must not mutate
// the returned slice or its elements.
func (q *Queue) Rows() []*Row { return q.rows }

// Len returns the number of rows currently in the queue.
func (q *Queue) Len() int { return len(q.rows) }

// MsDirtyTotal sums MsDirty across all rows — the dirty-metaslab count
// the pool feeds to Tunables.BlockLimit to compute the block budget.
func (q *Queue) MsDirtyTotal() uint64 {
	var total uint64
	for _, r := range q.rows {
		total += r.MsDirty
	}
	return total
}

// rowIsFull implements summary_entry_is_full: a row never spans a txg
// already its End (no splitting mid-TXG), and otherwise closes once
// either its TXG span or its block count saturates the configured
// per-row limits.
func rowIsFull(r *Row, txg uint64, lim Limits) bool {
	if r.End == txg {
		return false
	}
	if r.TxgCount >= lim.MaxTxgPerRow {
		return true
	}
	blocksPerRow := lim.BlockLimit / lim.MaxRows
	if lim.BlockLimit%lim.MaxRows != 0 {
		blocksPerRow++
	}
	if blocksPerRow < 1 {
		blocksPerRow = 1
	}
	return blocksPerRow <= r.BlkCount
}

// addData is the shared aggregation step behind AddIncomingBlocks and
// AddFlushedMetaslab (summary_add_data in the original): it opens a new
// trailing row when none exists yet or the trailing one is full, then
// folds the delta into whichever row is current.
func (q *Queue) addData(txg uint64, msFlushed, msDirty, nblocks uint64, lim Limits) {
	var r *Row
	if len(q.rows) > 0 {
		r = q.rows[len(q.rows)-1]
	}
	if r == nil || rowIsFull(r, txg, lim) {
		r = &Row{Start: txg, End: txg, TxgCount: 1}
		q.rows = append(q.rows, r)
	}
	base.Assert(r.Start <= txg, "logsm: summary row start %d > txg %d", r.Start, txg)
	if r.End < txg {
		r.End = txg
		r.TxgCount++
	}
	r.MsCount += msFlushed
	r.MsDirty += msDirty
	r.BlkCount += nblocks
}

// AddIncomingBlocks records nblocks new blocks written to the syncing
// LSM at txg (spa_log_summary_add_incoming_blocks).
func (q *Queue) AddIncomingBlocks(txg, nblocks uint64, lim Limits) {
	q.addData(txg, 0, 0, nblocks, lim)
}

// AddFlushedMetaslab records one metaslab flush at txg
// (spa_log_summary_add_flushed_metaslab); dirty indicates the
// metaslab is counted in the row's MsDirty as having unflushed changes.
func (q *Queue) AddFlushedMetaslab(txg uint64, dirty bool, lim Limits) {
	var msDirty uint64
	if dirty {
		msDirty = 1
	}
	q.addData(txg, 1, msDirty, 0, lim)
}

// rowFor locates the last row whose Start is <= txg — the row a
// metaslab unflushed at txg is accounted under (the shared lookup
// behind DecrementMetaslab and MarkFlushedMetaslabDirty).
func (q *Queue) rowFor(txg uint64) *Row {
	var target *Row
	for _, r := range q.rows {
		if r.Start > txg {
			break
		}
		target = r
	}
	return target
}

// DecrementMetaslab reflects a metaslab being flushed or destroyed,
// locating its summary row by the txg it was accounted under
// (spa_log_summary_decrement_mscount). It is a silent no-op when no
// matching row exists or that row's MsCount is already zero, which
// only happens while tearing down a failed Pool.Load attempt. Afterwards
// it discards head rows left with both MsCount and BlkCount at zero.
func (q *Queue) DecrementMetaslab(txg uint64, dirty bool) {
	target := q.rowFor(txg)
	if target == nil || target.MsCount == 0 {
		return
	}
	target.MsCount--
	if dirty {
		target.MsDirty--
	}
	for len(q.rows) > 0 && q.rows[0].MsCount == 0 && q.rows[0].BlkCount == 0 {
		q.rows = q.rows[1:]
	}
}

// MarkFlushedMetaslabDirty increments the dirty count of the row that
// accounts for the metaslab unflushed at txg
// (spa_log_summary_dirty_flushed_metaslab).
func (q *Queue) MarkFlushedMetaslabDirty(txg uint64) {
	target := q.rowFor(txg)
	base.Assert(target != nil, "logsm: no summary row accounts txg %d", txg)
	base.Assert(target.MsCount != 0, "logsm: summary row for txg %d has zero mscount", txg)
	target.MsDirty++
}

// DecrementBlocks reflects blocksGone blocks having been freed because
// their LSMs were destroyed (spa_log_summary_decrement_blkcount). It
// always starts at the oldest row and walks forward, handling the
// three scenarios documented in the original: [1]/[2] obsolete rows
// with zero referencing metaslabs are dropped entirely as blocksGone
// is drained through them, and [3] the corner case where the very last
// row's block count is zeroed out while its (non-zero) metaslab count
// is left alone, because those metaslabs will keep the row alive until
// they are individually torn down.
func (q *Queue) DecrementBlocks(blocksGone uint64) {
	base.Assert(len(q.rows) > 0, "logsm: DecrementBlocks on empty summary queue")

	if q.rows[0].TxgCount > 0 {
		q.rows[0].TxgCount--
	}

	for len(q.rows) > 0 {
		r := q.rows[0]
		switch {
		case r.BlkCount > blocksGone:
			r.BlkCount -= blocksGone
			blocksGone = 0
		case r.MsCount == 0:
			blocksGone -= r.BlkCount
			q.rows = q.rows[1:]
			continue
		default:
			// Scenario [3]: the last remaining row, fully drained of
			// blocks but still referenced by every flushed metaslab.
			base.Assert(blocksGone == r.BlkCount,
				"logsm: scenario [3] requires blocksGone==blkcount, got %d != %d", blocksGone, r.BlkCount)
			base.Assert(len(q.rows) == 1, "logsm: scenario [3] requires a single remaining row")
			r.BlkCount = 0
			blocksGone = 0
		}
		break
	}

	base.Assert(blocksGone == 0, "logsm: DecrementBlocks left %d blocks unaccounted", blocksGone)
}
