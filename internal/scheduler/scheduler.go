// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package scheduler implements the two flush heuristics of spec.md
// §4.6 (C6): a memory-pressure heuristic bounding how much unflushed
// data a pool may accumulate, and a block-budget heuristic projecting
// the incoming log block rate forward to decide how many metaslabs to
// flush this sync so that the log stays within its block limit.
package scheduler

import "github.com/loglsm/spacemap/internal/summary"

// Tunables mirrors the zfs_unflushed_*/zfs_max_*/zfs_min_* constants
// of spa_log_spacemap.c.
type Tunables struct {
	// MaxMemPPM is the fraction of total system memory, in parts per
	// million, that unflushed changes may occupy (zfs_unflushed_max_mem_ppm).
	MaxMemPPM uint64
	// MaxMemAmt is an absolute cap on unflushed memory regardless of
	// system size (zfs_unflushed_max_mem_amt).
	MaxMemAmt uint64
	// LogBlockPct, LogBlockMin, LogBlockMax compute the block limit
	// from the current dirty-metaslab count (zfs_unflushed_log_block_*).
	LogBlockPct uint64
	LogBlockMin uint64
	LogBlockMax uint64
	// LogTxgMax bounds how many TXGs of logs are kept outstanding
	// (zfs_unflushed_log_txg_max).
	LogTxgMax uint64
	// SummaryRows is the target number of summary rows
	// (zfs_max_logsm_summary_length).
	SummaryRows uint64
	// MinMetaslabsToFlush is the floor on the per-sync flush estimate
	// (zfs_min_metaslabs_to_flush).
	MinMetaslabsToFlush uint64
	// MaxLogWalking bounds how many recent LSMs feed the incoming-rate
	// estimate (zfs_max_log_walking).
	MaxLogWalking uint64
}

// DefaultTunables returns the defaults carried verbatim from the
// original implementation's module parameters.
func DefaultTunables() Tunables {
	return Tunables{
		MaxMemPPM:           1000,
		MaxMemAmt:           1 << 30,
		LogBlockPct:         400,
		LogBlockMin:         1000,
		LogBlockMax:         1 << 17,
		LogTxgMax:           1000,
		SummaryRows:         10,
		MinMetaslabsToFlush: 1,
		MaxLogWalking:       5,
	}
}

// BlockLimit computes the log's block budget from the current total
// dirty-metaslab count across the summary (spa_log_sm_set_blocklimit):
// msdcount * pct / 100, clamped to [min, max].
func (t Tunables) BlockLimit(msdcount uint64) uint64 {
	limit := msdcount * t.LogBlockPct / 100
	if limit < t.LogBlockMin {
		limit = t.LogBlockMin
	}
	if limit > t.LogBlockMax {
		limit = t.LogBlockMax
	}
	return limit
}

// MemChecker abstracts the system-memory query backing the memory
// heuristic (unix.Sysinfo on Linux; see sysmem_linux.go /
// sysmem_other.go).
type MemChecker interface {
	// TotalBytes returns total system RAM in bytes.
	TotalBytes() (uint64, error)
}

// OverMemoryBudget implements spa_log_exceeds_memlimit: true once
// unflushed memory usage exceeds either the absolute cap or the
// ppm-of-system-RAM cap.
func OverMemoryBudget(t Tunables, memUsed uint64, mem MemChecker) (bool, error) {
	if memUsed > t.MaxMemAmt {
		return true, nil
	}
	total, err := mem.TotalBytes()
	if err != nil {
		return false, err
	}
	allowed := (total * t.MaxMemPPM) / 1000000
	return memUsed > allowed, nil
}

// EstimateIncomingBlocks implements spa_estimate_incoming_log_blocks:
// the average block count over the last MaxLogWalking closed LSMs
// (walked most-recent-first), skipping the still-syncing LSM.
//
// recentNBlocks must be supplied most-recent-first and must already
// exclude the LSM for the current syncing TXG.
func (t Tunables) EstimateIncomingBlocks(recentNBlocks []uint64) uint64 {
	var sum, steps uint64
	for _, n := range recentNBlocks {
		if steps >= t.MaxLogWalking {
			break
		}
		sum += n
		steps++
	}
	if steps == 0 {
		return 0
	}
	return ceilDiv(sum, steps)
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// EstimateMetaslabsToFlush implements spa_estimate_metaslabs_to_flush
// exactly: it projects the incoming block rate forward TXG by TXG
// against the summary queue's rows, skipping ahead whenever there is
// still room under the block and TXG budgets, and keeps a running
// maximum of total-flushes-so-far divided by TXGs-in-future. That
// maximum is the number of metaslabs this sync should flush to stay
// under the block limit by the time the projection catches up with
// reality.
func EstimateMetaslabsToFlush(t Tunables, q *summary.Queue, blockLimit, nblocks, incoming uint64) uint64 {
	txgsInFuture := int64(1)
	availableBlocks := int64(blockLimit) - int64(nblocks) - int64(incoming)

	availableTxgs := int64(t.LogTxgMax)
	for _, r := range q.Rows() {
		availableTxgs -= int64(r.TxgCount)
	}

	var totalFlushes uint64
	maxFlushesPerTxg := t.MinMetaslabsToFlush

	for _, r := range q.Rows() {
		if availableBlocks >= 0 && availableTxgs >= 0 {
			var skipTxgs int64
			if incoming == 0 {
				skipTxgs = availableTxgs + 1
			} else {
				byBlocks := availableBlocks/int64(incoming) + 1
				skipTxgs = availableTxgs + 1
				if byBlocks < skipTxgs {
					skipTxgs = byBlocks
				}
			}
			availableBlocks -= skipTxgs * int64(incoming)
			availableTxgs -= skipTxgs
			txgsInFuture += skipTxgs
		}

		availableBlocks += int64(r.BlkCount)
		availableTxgs += int64(r.TxgCount)
		totalFlushes += r.MsDirty

		perTxg := ceilDiv(totalFlushes, uint64(txgsInFuture))
		if perTxg > maxFlushesPerTxg {
			maxFlushesPerTxg = perTxg
		}
	}
	return maxFlushesPerTxg
}
