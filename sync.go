// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package spacemap

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/loglsm/spacemap/internal/base"
	"github.com/loglsm/spacemap/internal/record"
	"github.com/loglsm/spacemap/internal/scheduler"
)

// Sync runs the sync-pass-1 integration of spec.md §4.7 for txg:
// it computes how many metaslabs to flush this TXG, drains the
// oldest-unflushed ones up to that budget (or until memory pressure
// demands more), closes the syncing LSM, and reclaims any LSMs that no
// metaslab still references. Callers must serialize Sync calls per
// pool (spec.md §5's "steps 2-6 are serialized per pool within a
// single TXG").
func (p *Pool) Sync(txg uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.flushIndex) == 0 && !p.exportRequested {
		return nil
	}

	if err := p.ensureSyncingLSMLocked(txg); err != nil {
		return err
	}

	wantToFlush := p.estimateFlushLocked(txg)

	candidates := p.flushIndex
	for _, ms := range candidates {
		if ms.Changes.Txg >= txg {
			break
		}
		over, err := p.overMemoryLocked()
		if err != nil {
			return errors.Wrapf(err, "logsm: checking memory budget")
		}
		if wantToFlush == 0 && !over {
			break
		}

		oldTxg := ms.Changes.Txg
		dirty := ms.Changes.Dirty

		if dirty {
			ms.mu.Lock()
			err := ms.Changes.DrainInto(ms.SM)
			ms.mu.Unlock()
			if err != nil {
				return errors.Wrapf(err, "logsm: draining metaslab %+v", ms.Key)
			}
			if wantToFlush > 0 && wantToFlush != math.MaxUint64 {
				wantToFlush--
			}
		}

		ms.mu.Lock()
		ms.Changes.Rebaseline(txg)
		ms.mu.Unlock()

		if oldLSM, ok := p.registry.Lookup(oldTxg); ok {
			oldLSM.DecMsCount()
		}
		p.summary.DecrementMetaslab(oldTxg, dirty)

		newLSM, ok := p.registry.Lookup(txg)
		base.Assert(ok, "logsm: no LSM registered for txg %d", txg)
		newLSM.IncMsCount()
		p.summary.AddFlushedMetaslab(txg, dirty, p.summaryLimitsLocked())
	}
	p.sortFlushIndexLocked()

	if err := p.closeSyncingLSMLocked(txg); err != nil {
		return err
	}

	p.reclaimLocked()
	p.recomputeStatsLocked()
	return nil
}

// estimateFlushLocked computes want_to_flush (spec.md §4.7 step 3).
func (p *Pool) estimateFlushLocked(txg uint64) uint64 {
	if p.exportRequested {
		return math.MaxUint64
	}

	recent := make([]uint64, 0, p.cfg.Tunables.MaxLogWalking)
	all := p.registry.All()
	for i := len(all) - 1; i >= 0 && len(recent) < int(p.cfg.Tunables.MaxLogWalking); i-- {
		if all[i].Txg == txg {
			continue
		}
		recent = append(recent, all[i].NBlocks)
	}
	incoming := p.cfg.Tunables.EstimateIncomingBlocks(recent)
	blockLimit := p.cfg.Tunables.BlockLimit(p.summary.MsDirtyTotal())
	return scheduler.EstimateMetaslabsToFlush(p.cfg.Tunables, &p.summary, blockLimit, p.stats.NBlocks, incoming)
}

func (p *Pool) overMemoryLocked() (bool, error) {
	return scheduler.OverMemoryBudget(p.cfg.Tunables, p.stats.MemUsed, p.cfg.Mem)
}

// closeSyncingLSMLocked implements spec.md §4.7 step 5: compute the
// LSM's physical block count from its final byte length, persist the
// chunk stream behind a header block, and fold nblocks into the pool
// and tail summary row.
func (p *Pool) closeSyncingLSMLocked(txg uint64) error {
	w := p.syncingWriter
	buf, headers := w.Finish()
	header := record.EncodeHeaderBlock(headers)

	lsm, ok := p.registry.Lookup(txg)
	base.Assert(ok, "logsm: closing LSM for unregistered txg %d", txg)

	if len(buf) > 0 {
		if err := p.store.Append(lsm.ObjectID, header); err != nil {
			return errors.Wrapf(err, "logsm: writing header block for txg %d", txg)
		}
		if err := p.store.Append(lsm.ObjectID, buf); err != nil {
			return errors.Wrapf(err, "logsm: writing chunk stream for txg %d", txg)
		}
	}

	length, err := p.store.Length(lsm.ObjectID)
	if err != nil {
		return errors.Wrapf(err, "logsm: reading LSM length for txg %d", txg)
	}
	// Pad the object up to a whole number of blocks (spec.md §6): every
	// LSM object's length must be an exact multiple of BlockSize so
	// nblocks accounting is exact rather than an estimate, and so Load
	// can treat a non-aligned length as corruption instead of rounding
	// through it silently.
	blockSize := uint64(p.cfg.BlockSize)
	if rem := uint64(length) % blockSize; rem != 0 {
		pad := make([]byte, blockSize-rem)
		if err := p.store.Append(lsm.ObjectID, pad); err != nil {
			return errors.Wrapf(err, "logsm: padding LSM object for txg %d to a block boundary", txg)
		}
		length += int64(len(pad))
	}
	nblocks := uint64(length) / blockSize
	lsm.NBlocks = nblocks

	p.summary.AddIncomingBlocks(txg, nblocks, p.summaryLimitsLocked())

	p.syncingWriter = nil
	p.syncingTxg = 0
	p.exportRequested = false
	return nil
}

// reclaimLocked implements spec.md §4.7 step 6: destroy LSMs older
// than the oldest remaining watermark, provided nothing still
// references them.
func (p *Pool) reclaimLocked() {
	if len(p.flushIndex) == 0 {
		return
	}
	tMin := p.flushIndex[0].Changes.Txg
	for {
		oldest := p.registry.Oldest()
		if oldest == nil || oldest.Txg >= tMin {
			return
		}
		base.Assert(oldest.MsCount == 0, "logsm: reclaiming LSM txg=%d with mscount=%d", oldest.Txg, oldest.MsCount)
		removed, err := p.registry.RemoveOldest()
		base.Assert(err == nil, "logsm: %v", err)
		if delErr := p.store.Remove(removed.ObjectID); delErr != nil {
			p.cfg.Logger.Infof("removing obsolete LSM object for txg %d: %v", removed.Txg, delErr)
		}
		if delErr := p.txgMap.Delete(removed.Txg); delErr != nil {
			p.cfg.Logger.Infof("removing ZAP entry for txg %d: %v", removed.Txg, delErr)
		}
		p.summary.DecrementBlocks(removed.NBlocks)
	}
}

func (p *Pool) recomputeStatsLocked() {
	var memUsed uint64
	for _, ms := range p.flushIndex {
		ms.mu.Lock()
		memUsed += ms.Changes.MemUsed()
		ms.mu.Unlock()
	}
	var nblocks uint64
	for _, r := range p.summary.Rows() {
		nblocks += r.BlkCount
	}
	blockLimit := p.cfg.Tunables.BlockLimit(p.summary.MsDirtyTotal())
	p.setStats(Stats{NBlocks: nblocks, MemUsed: memUsed, BlockLimit: blockLimit})
}
